package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Functions

// ApplyEnv overlays deployment-specific values from the process
// environment onto an already loaded config. A .env file in the
// working directory is honored when present. This enables host
// adaptions, e.g. one container image for all replicas, without
// needing to maintain per-replica config files.
func (conf *Config) ApplyEnv() {

	// Load environment file if one exists. Absence is fine,
	// the real environment may carry the values directly.
	_ = godotenv.Load(".env")

	if addr := os.Getenv("SOCKET_ADDRESS"); addr != "" {

		// When the listen address only mirrored the public
		// address, keep the two in sync.
		if conf.Replica.ListenAddr == conf.Replica.Addr {
			conf.Replica.ListenAddr = addr
		}

		conf.Replica.Addr = addr
	}

	if view := os.Getenv("VIEW"); view != "" {

		// VIEW lists all members of the replica group,
		// including this replica itself.
		peers := make([]string, 0)

		for _, member := range strings.Split(view, ",") {

			member = strings.TrimSpace(member)
			if member == "" || member == conf.Replica.Addr {
				continue
			}

			peers = append(peers, member)
		}

		conf.Replica.Peers = peers
	}

	if promAddr := os.Getenv("PROMETHEUS_ADDRESS"); promAddr != "" {
		conf.Replica.PrometheusAddr = promAddr
	}
}
