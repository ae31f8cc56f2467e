// Package config binds the command-line options of spec.md §6 via
// spf13/viper, in the shape of the teacher's cobra+viper flag wiring
// (cmd/thv-registry-api/app/serve.go's PersistentPreRun/BindPFlag idiom).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
)

// Config is the fully resolved, validated set of startup options.
type Config struct {
	Port             int
	InternalPort     int
	InternalBindAddr string // SPEC_FULL.md supplemented feature 3
	Cache            string
	SystemTemplate   string
	LOTemplate       string
	ChildRoot        string
	LOSubpath        string
	FileServerRoot   string
	NumPreSpawns     int
	TestMode         bool
	KeepJails        bool // SPEC_FULL.md supplemented feature 4
	PIDFile          string
}

// DefaultInternalPort is the "fixed, documented" internal port spec.md
// §6 requires (never auto-negotiated).
const DefaultInternalPort = 9981

// BindFlags registers every spec.md §6 option on cmd's flag set and binds
// it into v, following the teacher's BindPFlag-per-flag pattern.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Int("port", 9980, "public port; must differ from the internal port")
	flags.String("cache", "", "persistent tile cache root (must exist and be rwx)")
	flags.String("systemplate", "", "system template for jails (required)")
	flags.String("lotemplate", "", "editor install to copy into jails (required)")
	flags.String("childroot", "", "root under which jails are created (required)")
	flags.String("losubpath", "lo", "where the editor lands inside a jail")
	flags.String("fileserverroot", "", "static asset root (default derived from the binary path)")
	flags.Int("numprespawns", 10, "initial and steady-state ready-worker count")
	flags.Bool("test", false, "test mode: forces numprespawns to 1; no stdin driver is run")
	flags.String("internalbindaddr", fmt.Sprintf("127.0.0.1:%d", DefaultInternalPort), "internal endpoint bind address")
	flags.Bool("keepjails", false, "skip pre-fork and shutdown jail cleanup, for post-mortem debugging")
	flags.String("pidfile", "/tmp/loolwsd.pid", "absolute path of the PID file")

	for _, name := range []string{
		"port", "cache", "systemplate", "lotemplate", "childroot", "losubpath",
		"fileserverroot", "numprespawns", "test", "internalbindaddr", "keepjails", "pidfile",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

// Load resolves a Config from v and validates it, applying the `test`
// mode override (prespawn forced to 1) and deriving fileserverroot from
// the running binary's directory when unset. Validation failures are
// *errors.Error of type configuration, matching spec.md §7's "Fatal; exit
// non-zero before binding" policy.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:             v.GetInt("port"),
		InternalPort:     DefaultInternalPort,
		InternalBindAddr: v.GetString("internalbindaddr"),
		Cache:            v.GetString("cache"),
		SystemTemplate:   v.GetString("systemplate"),
		LOTemplate:       v.GetString("lotemplate"),
		ChildRoot:        ensureTrailingSeparator(v.GetString("childroot")),
		LOSubpath:        v.GetString("losubpath"),
		FileServerRoot:   v.GetString("fileserverroot"),
		NumPreSpawns:     v.GetInt("numprespawns"),
		TestMode:         v.GetBool("test"),
		KeepJails:        v.GetBool("keepjails"),
		PIDFile:          v.GetString("pidfile"),
	}

	if cfg.TestMode {
		cfg.NumPreSpawns = 1
	}

	if cfg.FileServerRoot == "" {
		exe, err := os.Executable()
		if err == nil {
			cfg.FileServerRoot = filepath.Dir(exe)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureTrailingSeparator(dir string) string {
	if dir == "" || strings.HasSuffix(dir, string(os.PathSeparator)) {
		return dir
	}
	return dir + string(os.PathSeparator)
}

func (c *Config) validate() error {
	if c.SystemTemplate == "" {
		return apperrors.NewConfigurationError("systemplate is required", nil)
	}
	if c.LOTemplate == "" {
		return apperrors.NewConfigurationError("lotemplate is required", nil)
	}
	if c.ChildRoot == "" {
		return apperrors.NewConfigurationError("childroot is required", nil)
	}
	if c.Port == c.InternalPort {
		return apperrors.NewConfigurationError("public port must differ from the internal port", nil)
	}
	if c.Cache != "" {
		info, err := os.Stat(c.Cache)
		if err != nil || !info.IsDir() {
			return apperrors.NewConfigurationError(fmt.Sprintf("cache directory %q must exist", c.Cache), err)
		}
		// 7 = read, write and search permission for the current user.
		if err := syscall.Access(c.Cache, 7); err != nil {
			return apperrors.NewConfigurationError(fmt.Sprintf("cache directory %q must be readable, writable and searchable", c.Cache), err)
		}
	}
	if os.Geteuid() == 0 {
		return apperrors.NewConfigurationError("refusing to start as root", nil)
	}
	return nil
}
