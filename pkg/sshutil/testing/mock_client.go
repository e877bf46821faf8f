package testing

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/enrollkit/enroll/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// MockUser models an account on the mock host.
type MockUser struct {
	UID    int
	Home   string
	Groups []string
}

// MockClient simulates an SSH connection to a Linux host for testing.
// It parses the shell commands provisioning runs (id, getent, useradd,
// groupadd, systemctl, package managers, file tests) and executes them
// against an in-memory host model.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	user     string
	fs       *MockFS
	closed   bool
	commands map[string]CommandResponse // pattern -> response

	// Host model
	users          map[string]*MockUser
	groups         map[string]bool
	packages       map[string]bool
	services       map[string]string // name -> last action (started/restarted/...)
	packageManager string            // apt-get, dnf, yum, or zypper
	osName         string            // value reported by uname -s
	hostname       string
	nextUID        int
}

// NewMockClient creates a new mock SSH client backed by a bare host model.
// The model starts with a dnf package manager and an empty filesystem;
// use NewLinuxHost for a host preloaded with typical sshd/PAM files.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:           host,
		address:        host + ":22",
		user:           "root",
		fs:             NewMockFS(),
		commands:       make(map[string]CommandResponse),
		users:          make(map[string]*MockUser),
		groups:         make(map[string]bool),
		packages:       make(map[string]bool),
		services:       make(map[string]string),
		packageManager: "dnf",
		osName:         "Linux",
		hostname:       host,
		nextUID:        1001,
	}
}

// Exec runs a command against the host model.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}

	// Check for exact command matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	// Check for pattern matches
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
		}
	}

	return m.parseAndExecute(cmd)
}

// ExecStream runs a command and writes output to the provided writers.
func (m *MockClient) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	out, errOut, code, execErr := m.Exec(cmd)
	if execErr != nil {
		return -1, execErr
	}

	if stdout != nil && len(out) > 0 {
		stdout.Write(out)
	}
	if stderr != nil && len(errOut) > 0 {
		stderr.Write(errOut)
	}

	return code, nil
}

// ExecInput runs a command, ignoring the piped stdin (passwords in tests).
func (m *MockClient) ExecInput(cmd string, input []byte) (stdout, stderr []byte, exitCode int, err error) {
	return m.Exec(cmd)
}

// Upload writes content to the mock filesystem.
func (m *MockClient) Upload(path string, content []byte, mode uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if err := m.fs.WriteFile(path, content); err != nil {
		return err
	}
	if mode != 0 {
		m.fs.Chmod(path, mode)
	}
	return nil
}

// Download reads a file from the mock filesystem.
func (m *MockClient) Download(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("connection closed")
	}
	return m.fs.ReadFile(path)
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// GetUser returns the username this mock session pretends to be.
func (m *MockClient) GetUser() string {
	return m.user
}

// SetUser changes the username reported by GetUser.
func (m *MockClient) SetUser(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern. Canned responses
// take precedence over the host model and are the way tests inject failures.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetPackageManager selects which package manager the host model answers
// `command -v` probes for (apt-get, dnf, yum, or zypper).
func (m *MockClient) SetPackageManager(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packageManager = name
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// User returns the model state for an account, or nil if absent.
func (m *MockClient) User(name string) *MockUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[name]
}

// AddUser seeds an account into the host model.
func (m *MockClient) AddUser(name, home string, groups ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[name] = &MockUser{UID: m.nextUID, Home: home, Groups: groups}
	m.nextUID++
}

// HasGroup reports whether the group exists in the host model.
func (m *MockClient) HasGroup(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[name]
}

// HasPackage reports whether the package was installed on the host model.
func (m *MockClient) HasPackage(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packages[name]
}

// ServiceState returns the last systemctl action applied to a service
// ("" if none).
func (m *MockClient) ServiceState(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[name]
}

// mockSession is a minimal session that just closes.
type mockSession struct{}

func (s *mockSession) Close() error { return nil }

// NewSession creates a mock session for liveness checks.
func (m *MockClient) NewSession() (sshutil.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("connection closed")
	}
	return &mockSession{}, nil
}

// parseAndExecute handles the shell commands provisioning runs.
func (m *MockClient) parseAndExecute(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	cmd = strings.TrimSuffix(cmd, " 2>&1")
	cmd = strings.TrimSpace(cmd)

	// Privileged commands arrive wrapped; the model doesn't distinguish
	// root from non-root, so the wrapper is stripped.
	cmd = stripSudo(cmd)

	fields := splitQuoted(cmd)

	// Skip leading environment assignments (DEBIAN_FRONTEND=... apt-get ...).
	for len(fields) > 0 && strings.Contains(fields[0], "=") && !strings.HasPrefix(fields[0], "-") {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil, nil, 0, nil
	}

	switch fields[0] {
	case "uname":
		if len(fields) > 1 && fields[1] == "-m" {
			return []byte("x86_64\n"), nil, 0, nil
		}
		return []byte(m.osName + "\n"), nil, 0, nil
	case "hostname":
		return []byte(m.hostname + "\n"), nil, 0, nil
	case "getent":
		return m.handleGetent(fields)
	case "groupadd":
		return m.handleGroupadd(fields)
	case "id":
		return m.handleID(fields)
	case "useradd":
		return m.handleUseradd(fields)
	case "usermod":
		return m.handleUsermod(fields)
	case "mkdir":
		return m.handleMkdir(fields)
	case "cat":
		return m.handleCat(fields)
	case "test", "[":
		return m.handleTest(fields)
	case "install":
		return m.handleInstall(fields)
	case "rm":
		return m.handleRm(fields)
	case "command":
		return m.handleCommandV(fields)
	case "apt-get", "dnf", "yum", "zypper":
		return m.handlePackageManager(fields)
	case "systemctl":
		return m.handleSystemctl(fields)
	case "sshd":
		// Config validation (sshd -t) always passes on the model.
		return nil, nil, 0, nil
	case "chown", "chmod":
		return nil, nil, 0, nil
	}

	// Unknown command - return success by default
	return nil, nil, 0, nil
}

func (m *MockClient) handleGetent(fields []string) ([]byte, []byte, int, error) {
	if len(fields) < 3 {
		return nil, []byte("getent: wrong number of arguments"), 1, nil
	}
	switch fields[1] {
	case "group":
		name := fields[2]
		if m.groups[name] {
			var members []string
			for u, user := range m.users {
				for _, g := range user.Groups {
					if g == name {
						members = append(members, u)
					}
				}
			}
			return []byte(fmt.Sprintf("%s:x:990:%s\n", name, strings.Join(members, ","))), nil, 0, nil
		}
		return nil, nil, 2, nil
	case "passwd":
		name := fields[2]
		if user, ok := m.users[name]; ok {
			return []byte(fmt.Sprintf("%s:x:%d:%d::%s:/bin/bash\n", name, user.UID, user.UID, user.Home)), nil, 0, nil
		}
		return nil, nil, 2, nil
	}
	return nil, nil, 1, nil
}

func (m *MockClient) handleGroupadd(fields []string) ([]byte, []byte, int, error) {
	name := lastNonFlag(fields[1:])
	if name == "" {
		return nil, []byte("groupadd: missing group name"), 2, nil
	}
	if m.groups[name] {
		return nil, []byte(fmt.Sprintf("groupadd: group '%s' already exists", name)), 9, nil
	}
	m.groups[name] = true
	return nil, nil, 0, nil
}

func (m *MockClient) handleID(fields []string) ([]byte, []byte, int, error) {
	name := lastNonFlag(fields[1:])
	if user, ok := m.users[name]; ok {
		return []byte(fmt.Sprintf("%d\n", user.UID)), nil, 0, nil
	}
	return nil, []byte(fmt.Sprintf("id: '%s': no such user", name)), 1, nil
}

func (m *MockClient) handleUseradd(fields []string) ([]byte, []byte, int, error) {
	var name, groups string
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "-G", "--groups":
			if i+1 < len(fields) {
				groups = fields[i+1]
				i++
			}
		case "-s", "--shell", "-c", "--comment":
			i++
		default:
			if !strings.HasPrefix(fields[i], "-") {
				name = fields[i]
			}
		}
	}
	if name == "" {
		return nil, []byte("useradd: missing login name"), 2, nil
	}
	if _, exists := m.users[name]; exists {
		return nil, []byte(fmt.Sprintf("useradd: user '%s' already exists", name)), 9, nil
	}
	for _, g := range strings.Split(groups, ",") {
		if g != "" && !m.groups[g] {
			return nil, []byte(fmt.Sprintf("useradd: group '%s' does not exist", g)), 6, nil
		}
	}
	home := "/home/" + name
	var groupList []string
	if groups != "" {
		groupList = strings.Split(groups, ",")
	}
	m.users[name] = &MockUser{UID: m.nextUID, Home: home, Groups: groupList}
	m.nextUID++
	_ = m.fs.MkdirAll(home)
	return nil, nil, 0, nil
}

func (m *MockClient) handleUsermod(fields []string) ([]byte, []byte, int, error) {
	var name, group string
	append_ := false
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "-a", "--append":
			append_ = true
		case "-G", "--groups":
			if i+1 < len(fields) {
				group = fields[i+1]
				i++
			}
		default:
			if !strings.HasPrefix(fields[i], "-") {
				name = fields[i]
			}
		}
	}
	user, ok := m.users[name]
	if !ok {
		return nil, []byte(fmt.Sprintf("usermod: user '%s' does not exist", name)), 6, nil
	}
	if group != "" {
		if !m.groups[group] {
			return nil, []byte(fmt.Sprintf("usermod: group '%s' does not exist", group)), 6, nil
		}
		if append_ {
			for _, g := range user.Groups {
				if g == group {
					return nil, nil, 0, nil
				}
			}
			user.Groups = append(user.Groups, group)
		} else {
			user.Groups = []string{group}
		}
	}
	return nil, nil, 0, nil
}

func (m *MockClient) handleMkdir(fields []string) ([]byte, []byte, int, error) {
	path := lastNonFlag(fields[1:])
	if path == "" {
		return nil, []byte("mkdir: missing operand"), 1, nil
	}
	_ = m.fs.MkdirAll(path)
	return nil, nil, 0, nil
}

func (m *MockClient) handleCat(fields []string) ([]byte, []byte, int, error) {
	path := lastNonFlag(fields[1:])
	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, []byte(fmt.Sprintf("cat: %s: No such file or directory", path)), 1, nil
	}
	return content, nil, 0, nil
}

func (m *MockClient) handleTest(fields []string) ([]byte, []byte, int, error) {
	var flag, path string
	for _, f := range fields[1:] {
		switch f {
		case "-f", "-d":
			flag = f
		case "]":
		default:
			path = f
		}
	}
	switch flag {
	case "-f":
		if m.fs.IsFile(path) {
			return nil, nil, 0, nil
		}
	case "-d":
		if m.fs.IsDir(path) {
			return nil, nil, 0, nil
		}
	}
	return nil, nil, 1, nil
}

// handleInstall processes: install [-o user] [-g group] [-m mode] src dst
func (m *MockClient) handleInstall(fields []string) ([]byte, []byte, int, error) {
	var positional []string
	var mode string
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "-o", "-g":
			i++
		case "-m":
			if i+1 < len(fields) {
				mode = fields[i+1]
				i++
			}
		default:
			positional = append(positional, fields[i])
		}
	}
	if len(positional) != 2 {
		return nil, []byte("install: missing file operand"), 1, nil
	}
	content, err := m.fs.ReadFile(positional[0])
	if err != nil {
		return nil, []byte(fmt.Sprintf("install: cannot stat '%s': No such file or directory", positional[0])), 1, nil
	}
	_ = m.fs.WriteFile(positional[1], content)
	if mode != "" {
		var bits uint32
		fmt.Sscanf(mode, "%o", &bits)
		m.fs.Chmod(positional[1], bits)
	}
	return nil, nil, 0, nil
}

func (m *MockClient) handleRm(fields []string) ([]byte, []byte, int, error) {
	path := lastNonFlag(fields[1:])
	if path == "" {
		return nil, []byte("rm: missing operand"), 1, nil
	}
	_ = m.fs.Remove(path)
	return nil, nil, 0, nil
}

func (m *MockClient) handleCommandV(fields []string) ([]byte, []byte, int, error) {
	// command -v <name>
	name := lastNonFlag(fields[1:])
	if name == m.packageManager {
		return []byte("/usr/bin/" + name + "\n"), nil, 0, nil
	}
	return nil, nil, 1, nil
}

func (m *MockClient) handlePackageManager(fields []string) ([]byte, []byte, int, error) {
	if fields[0] != m.packageManager {
		return nil, []byte(fields[0] + ": command not found"), 127, nil
	}
	for i := 1; i < len(fields); i++ {
		if fields[i] == "install" || fields[i] == "in" {
			pkg := lastNonFlag(fields[i+1:])
			if pkg != "" {
				m.packages[pkg] = true
			}
			return nil, nil, 0, nil
		}
	}
	return nil, nil, 0, nil
}

func (m *MockClient) handleSystemctl(fields []string) ([]byte, []byte, int, error) {
	if len(fields) < 3 {
		return nil, []byte("systemctl: missing arguments"), 1, nil
	}
	action, service := fields[1], fields[2]
	switch action {
	case "restart", "start", "reload":
		m.services[service] = action + "ed"
		return nil, nil, 0, nil
	case "stop":
		m.services[service] = "stopped"
		return nil, nil, 0, nil
	case "is-active":
		return []byte("active\n"), nil, 0, nil
	}
	return nil, nil, 0, nil
}

// stripSudo removes sudo wrappers so the model sees the underlying command.
func stripSudo(cmd string) string {
	for {
		switch {
		case strings.HasPrefix(cmd, "sudo -n "):
			cmd = strings.TrimPrefix(cmd, "sudo -n ")
		case strings.HasPrefix(cmd, "sudo -S -p '' "):
			cmd = strings.TrimPrefix(cmd, "sudo -S -p '' ")
		case strings.HasPrefix(cmd, "sudo "):
			cmd = strings.TrimPrefix(cmd, "sudo ")
		default:
			return cmd
		}
	}
}

// splitQuoted splits a shell command into fields, honoring single quotes.
func splitQuoted(cmd string) []string {
	var fields []string
	var current strings.Builder
	inQuote := false
	for _, r := range cmd {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}

// lastNonFlag returns the last argument that doesn't look like a flag.
func lastNonFlag(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return ""
}
