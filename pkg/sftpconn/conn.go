package sftpconn

import (
	"flag"
	"os"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Config struct {
	Addr           string         `yaml:"addr"`
	User           string         `yaml:"user"`
	Password       flagext.Secret `yaml:"password"`
	PrivateKeyFile string         `yaml:"private_key_file"`
	KnownHostsFile string         `yaml:"known_hosts_file"`
	DialTimeout    time.Duration  `yaml:"dial_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Addr, flagPrefix+"addr", "", `SFTP server address (host:port)`)
	f.StringVar(&c.User, flagPrefix+"user", "", `SFTP user`)
	f.Var(&c.Password, flagPrefix+"password", `SFTP password`)
	f.StringVar(&c.PrivateKeyFile, flagPrefix+"private-key-file", "", `Path to SSH private key`)
	f.StringVar(&c.KnownHostsFile, flagPrefix+"known-hosts-file", "", `Path to known_hosts for host key verification`)
	f.DurationVar(&c.DialTimeout, flagPrefix+"dial-timeout", 30*time.Second, `SSH dial timeout`)
}

// Conn is a single SSH session with an SFTP subsystem on top. The whole
// pipeline shares one connection.
type Conn struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

func Dial(cfg Config) (*Conn, error) {
	auth := make([]ssh.AuthMethod, 0, 2)
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "sftp conn read private key")
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "sftp conn parse private key")
		}

		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password.String() != "" {
		auth = append(auth, ssh.Password(cfg.Password.String()))
	}
	if len(auth) == 0 {
		return nil, errors.New("sftp conn requires a password or a private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrap(err, "sftp conn load known hosts")
		}
		hostKeyCallback = cb
	}

	sshClient, err := ssh.Dial("tcp", cfg.Addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.DialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sftp conn dial")
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, errors.Wrap(err, "sftp conn open subsystem")
	}

	return &Conn{
		sshClient:  sshClient,
		sftpClient: sftpClient,
	}, nil
}

func (c *Conn) Client() *sftp.Client {
	return c.sftpClient
}

func (c *Conn) Close() error {
	if err := c.sftpClient.Close(); err != nil {
		_ = c.sshClient.Close()
		return errors.Wrap(err, "sftp conn close subsystem")
	}

	if err := c.sshClient.Close(); err != nil {
		return errors.Wrap(err, "sftp conn close ssh")
	}

	return nil
}
