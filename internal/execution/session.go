package execution

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	DEFAULT_SSH_PORT        = 22
	DEFAULT_SSH_USER        = "root"
	DEFAULT_CONNECT_TIMEOUT = 5 * time.Second
)

// Session holds the connection parameters for one remote host. It is a plain
// value: every operation receives it explicitly and nothing mutates it.
type Session struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	KeyPassphrase  string
	ConnectTimeout time.Duration
}

// NewSession fills defaults for port, user and connect timeout.
func NewSession(host string, port int, user, keyFile string) Session {
	s := Session{Host: host, Port: port, User: user, KeyFile: keyFile}
	return s.withDefaults()
}

func (s Session) withDefaults() Session {
	if s.Port == 0 {
		s.Port = DEFAULT_SSH_PORT
	}
	if strings.TrimSpace(s.User) == "" {
		s.User = DEFAULT_SSH_USER
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DEFAULT_CONNECT_TIMEOUT
	}
	return s
}

// Addr returns host:port.
func (s Session) Addr() string {
	s = s.withDefaults()
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Validate reports missing mandatory fields.
func (s Session) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, errors.New("host must be set"))
	}
	if strings.TrimSpace(s.KeyFile) == "" {
		errs = append(errs, errors.New("key file must be set"))
	}
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", s.Port))
	}
	return errors.Join(errs...)
}

// clientConfig applies the fixed connection policy: public key only, no
// password or keyboard-interactive fallback, host keys not verified and a
// bounded connect timeout.
func (s Session) clientConfig() (*ssh.ClientConfig, error) {
	s = s.withDefaults()
	signer, err := LoadSigner(s.KeyFile, s.KeyPassphrase)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.ConnectTimeout,
	}, nil
}

// LoadSigner reads and parses a private key file.
func LoadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyFile, err := os.ReadFile(ExpandTilde(keyPath))
	if err != nil {
		return nil, err
	}

	var key ssh.Signer
	if passphrase != "" {
		key, err = ssh.ParsePrivateKeyWithPassphrase(keyFile, []byte(passphrase))
	} else {
		key, err = ssh.ParsePrivateKey(keyFile)
	}
	if err != nil {
		return nil, errors.New("error reading key file: " + err.Error())
	}
	return key, nil
}

// KeyNeedsPassphrase reports whether the key at keyPath is encrypted.
func KeyNeedsPassphrase(keyPath string) (bool, error) {
	keyFile, err := os.ReadFile(ExpandTilde(keyPath))
	if err != nil {
		return false, err
	}
	_, err = ssh.ParsePrivateKey(keyFile)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true, nil
	}
	return false, nil
}

// ExpandTilde expands a leading ~ to $HOME and then any environment variables.
func ExpandTilde(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = "$HOME" + path[1:]
	}
	return os.ExpandEnv(path)
}
