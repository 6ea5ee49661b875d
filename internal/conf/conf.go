// Configuration loading and the process-wide manager lifecycle.
//
// Adapted from the teacher's conf/conf.go, conf/io.go and conf/manage.go:
// a lower-cased TOML-decodable struct, a public Conf with resolved
// durations and loggers, and a Manager registry that Start()s everything
// and waits for an interrupt or termination signal before Shutdown()ing
// in reverse order.
package conf

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultConfFile = "fourrow.toml"

// tomlConf is the on-disk representation.
type tomlConf struct {
	Debug bool `toml:"debug"`

	Database struct {
		File string `toml:"file"`
	} `toml:"database"`

	Queue struct {
		Capacity            uint `toml:"capacity"`
		ReplyTimeoutSeconds uint `toml:"reply_timeout_seconds"`
	} `toml:"queue"`

	Game struct {
		PlayerCountLimit       uint `toml:"player_count_limit"`
		TurnSeconds            uint `toml:"turn_seconds"`
		GameCleanupTimeout     uint `toml:"game_cleanup_timeout"`
		PlayerCleanupTimeout   uint `toml:"player_cleanup_timeout"`
		CleanupIntervalSeconds uint `toml:"cleanup_interval_seconds"`
	} `toml:"game"`

	Diag struct {
		Enabled bool `toml:"enabled"`
		Port    uint `toml:"port"`
	} `toml:"diag"`
}

// Conf is the resolved, process-wide configuration object threaded
// through every component's constructor, mirroring the teacher's public
// Conf struct.
type Conf struct {
	Log   *log.Logger
	Debug *log.Logger

	DatabaseFile string

	QueueCapacity uint
	ReplyTimeout  time.Duration

	PlayerCountLimit     uint
	TurnTimeout          time.Duration
	GameCleanupTimeout   time.Duration
	PlayerCleanupTimeout time.Duration
	CleanupInterval      time.Duration

	DiagEnabled bool
	DiagPort    uint

	man []Manager
	run bool
}

// defaults mirror the magnitudes spec.md §6 and §9 suggest (e.g. 25s
// turn timeout, cleanup at least as long as a worst-case game).
var defaultTomlConf = tomlConf{
	Database: struct {
		File string `toml:"file"`
	}{File: "fourrow.db"},
	Queue: struct {
		Capacity            uint `toml:"capacity"`
		ReplyTimeoutSeconds uint `toml:"reply_timeout_seconds"`
	}{Capacity: 256, ReplyTimeoutSeconds: 5},
	Game: struct {
		PlayerCountLimit       uint `toml:"player_count_limit"`
		TurnSeconds            uint `toml:"turn_seconds"`
		GameCleanupTimeout     uint `toml:"game_cleanup_timeout"`
		PlayerCleanupTimeout   uint `toml:"player_cleanup_timeout"`
		CleanupIntervalSeconds uint `toml:"cleanup_interval_seconds"`
	}{
		PlayerCountLimit:       2000,
		TurnSeconds:            25,
		GameCleanupTimeout:     3600,
		PlayerCleanupTimeout:   600,
		CleanupIntervalSeconds: 120,
	},
	Diag: struct {
		Enabled bool `toml:"enabled"`
		Port    uint `toml:"port"`
	}{Enabled: false, Port: 8089},
}

var (
	confFile = flag.String("conf", defaultConfFile, "Path to configuration file")
	dumpConf = flag.Bool("dump-config", false, "Dump the active configuration and exit")
	debug    = flag.Bool("debug", false, "Enable debug logging")
)

// resolve converts the on-disk shape into the public Conf.
func resolve(t tomlConf) *Conf {
	c := &Conf{
		Log: log.Default(),
		Debug: log.New(io.Discard, "[debug] ", log.Ltime|log.Lshortfile|log.Lmicroseconds),

		DatabaseFile: t.Database.File,

		QueueCapacity: t.Queue.Capacity,
		ReplyTimeout:  time.Duration(t.Queue.ReplyTimeoutSeconds) * time.Second,

		PlayerCountLimit:     t.Game.PlayerCountLimit,
		TurnTimeout:          time.Duration(t.Game.TurnSeconds) * time.Second,
		GameCleanupTimeout:   time.Duration(t.Game.GameCleanupTimeout) * time.Second,
		PlayerCleanupTimeout: time.Duration(t.Game.PlayerCleanupTimeout) * time.Second,
		CleanupInterval:      time.Duration(t.Game.CleanupIntervalSeconds) * time.Second,

		DiagEnabled: t.Diag.Enabled,
		DiagPort:    t.Diag.Port,
	}
	if t.Debug || *debug {
		c.Debug.SetOutput(os.Stderr)
	}
	return c
}

// Load reads the configuration file named by -conf, falling back to
// built-in defaults if it does not exist (matching the teacher's
// LoadConf: a missing default file is not an error, a missing explicit
// file is).
func Load() (*Conf, error) {
	flag.Parse()

	t := defaultTomlConf
	file, err := os.Open(*confFile)
	switch {
	case err == nil:
		defer file.Close()
		if _, decErr := toml.NewDecoder(file).Decode(&t); decErr != nil {
			return nil, fmt.Errorf("decode %s: %w", *confFile, decErr)
		}
	case os.IsNotExist(err) && *confFile == defaultConfFile:
		// Use defaults silently, as with the teacher's server.toml.
	default:
		return nil, fmt.Errorf("open %s: %w", *confFile, err)
	}

	c := resolve(t)

	if *dumpConf {
		if dumpErr := c.Dump(os.Stdout); dumpErr != nil {
			return nil, fmt.Errorf("dump config: %w", dumpErr)
		}
		os.Exit(0)
	}

	return c, nil
}

// Dump serialises the resolved configuration back to TOML.
func (c *Conf) Dump(w io.Writer) error {
	t := tomlConf{}
	t.Database.File = c.DatabaseFile
	t.Queue.Capacity = c.QueueCapacity
	t.Queue.ReplyTimeoutSeconds = uint(c.ReplyTimeout / time.Second)
	t.Game.PlayerCountLimit = c.PlayerCountLimit
	t.Game.TurnSeconds = uint(c.TurnTimeout / time.Second)
	t.Game.GameCleanupTimeout = uint(c.GameCleanupTimeout / time.Second)
	t.Game.PlayerCleanupTimeout = uint(c.PlayerCleanupTimeout / time.Second)
	t.Game.CleanupIntervalSeconds = uint(c.CleanupInterval / time.Second)
	t.Diag.Enabled = c.DiagEnabled
	t.Diag.Port = c.DiagPort
	return toml.NewEncoder(w).Encode(t)
}

// Manager is a component with a process-wide lifecycle: the store, the
// arbiter, and the optional diagnostic stream all implement it, matching
// the teacher's conf/manage.go Manager interface.
type Manager interface {
	fmt.Stringer
	Start()
	Shutdown()
}

// Register adds m to the set of managers started by Run and stopped on
// shutdown, in registration order.
func (c *Conf) Register(m Manager) {
	if c.run {
		panic(fmt.Sprintf("late register: %v", m))
	}
	c.man = append(c.man, m)
}

// Run starts every registered manager and blocks until SIGINT/SIGTERM,
// then shuts them down in reverse registration order.
func (c *Conf) Run() {
	for _, m := range c.man {
		c.Debug.Printf("starting %s", m)
		go m.Start()
	}
	c.run = true

	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt, syscall.SIGTERM)
	<-intr
	c.Log.Println("caught interrupt, shutting down")

	for i := len(c.man) - 1; i >= 0; i-- {
		m := c.man[i]
		c.Debug.Printf("shutting %s down", m)
		m.Shutdown()
	}
}
