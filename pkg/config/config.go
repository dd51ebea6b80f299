// Package config implements spec.md §6's configuration table: CLI flags and
// a config file, layered flags > env > file > defaults via
// github.com/spf13/viper, bound to a github.com/spf13/cobra command tree
// (root command, "serve" as the default action), the same cobra/viper
// pairing the pack's orbas1-Synnergy repo uses for its own entrypoints.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every option of spec.md §6's configuration table.
type Config struct {
	Network string `mapstructure:"network"`

	DaemonRPCAddr string `mapstructure:"daemon_rpc_addr"`
	DaemonDir     string `mapstructure:"daemon_dir"`
	Cookie        string `mapstructure:"cookie"`
	DaemonUser    string `mapstructure:"daemon_user"`
	DaemonPass    string `mapstructure:"daemon_pass"`

	DBDir string `mapstructure:"db_dir"`

	HTTPAddr         string `mapstructure:"http_addr"`
	ElectrumRPCAddr  string `mapstructure:"electrum_rpc_addr"`
	MonitoringAddr   string `mapstructure:"monitoring_addr"`

	AddressSearch    bool `mapstructure:"address_search"`
	UTXOsLimit       int  `mapstructure:"utxos_limit"`
	ElectrumTxsLimit int  `mapstructure:"electrum_txs_limit"`

	JSONRPCImport bool `mapstructure:"jsonrpc_import"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("network", "mainnet")
	v.SetDefault("daemon_rpc_addr", "127.0.0.1:8332")
	v.SetDefault("db_dir", "./db")
	v.SetDefault("http_addr", "127.0.0.1:3000")
	v.SetDefault("electrum_rpc_addr", "127.0.0.1:50001")
	v.SetDefault("monitoring_addr", "127.0.0.1:4224")
	v.SetDefault("address_search", false)
	v.SetDefault("utxos_limit", 100)
	v.SetDefault("electrum_txs_limit", 100)
	v.SetDefault("jsonrpc_import", false)
	v.SetDefault("log_level", "info")
}

// RootCmd builds the cobra command tree of spec.md §2.3: a root command
// carrying every persistent flag, running run when invoked directly (serve
// is the default action, not a separate subcommand a user must remember).
func RootCmd(run func(*Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ELECTRS")
	v.AutomaticEnv()
	defaults(v)

	cmd := &cobra.Command{
		Use:   "electrsd",
		Short: "Electrum-compatible index and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}
			var cfg Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("decoding config: %w", err)
			}
			return run(&cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a TOML/YAML config file")
	flags.String("network", v.GetString("network"), "network: mainnet, testnet, regtest")
	flags.String("daemon-rpc-addr", v.GetString("daemon_rpc_addr"), "daemon JSON-RPC address")
	flags.String("daemon-dir", "", "directory holding the daemon's blk*.dat files, read directly by the block-file fetcher")
	flags.String("cookie", "", "explicit daemon RPC cookie file path")
	flags.String("daemon-user", "", "daemon RPC username (if not using cookie auth)")
	flags.String("daemon-pass", "", "daemon RPC password (if not using cookie auth)")
	flags.String("db-dir", v.GetString("db_dir"), "KV store directory")
	flags.String("http-addr", v.GetString("http_addr"), "REST server bind address")
	flags.String("electrum-rpc-addr", v.GetString("electrum_rpc_addr"), "Electrum server bind address")
	flags.String("monitoring-addr", v.GetString("monitoring_addr"), "Prometheus /metrics bind address")
	flags.Bool("address-search", v.GetBool("address_search"), "enable the address-prefix search endpoint")
	flags.Int("utxos-limit", v.GetInt("utxos_limit"), "max UTXOs returned per page")
	flags.Int("electrum-txs-limit", v.GetInt("electrum_txs_limit"), "max UTXOs Electrum's listunspent returns (get_history is not capped)")
	flags.Bool("jsonrpc-import", v.GetBool("jsonrpc_import"), "force RPC-only block fetching, skipping the blk-file reader")
	flags.String("log-level", v.GetString("log_level"), "logrus level: trace, debug, info, warn, error")
	flags.String("log-file", "", "log file path (rotated via lumberjack); empty logs to stderr")

	_ = v.BindPFlag("network", flags.Lookup("network"))
	_ = v.BindPFlag("daemon_rpc_addr", flags.Lookup("daemon-rpc-addr"))
	_ = v.BindPFlag("daemon_dir", flags.Lookup("daemon-dir"))
	_ = v.BindPFlag("cookie", flags.Lookup("cookie"))
	_ = v.BindPFlag("daemon_user", flags.Lookup("daemon-user"))
	_ = v.BindPFlag("daemon_pass", flags.Lookup("daemon-pass"))
	_ = v.BindPFlag("db_dir", flags.Lookup("db-dir"))
	_ = v.BindPFlag("http_addr", flags.Lookup("http-addr"))
	_ = v.BindPFlag("electrum_rpc_addr", flags.Lookup("electrum-rpc-addr"))
	_ = v.BindPFlag("monitoring_addr", flags.Lookup("monitoring-addr"))
	_ = v.BindPFlag("address_search", flags.Lookup("address-search"))
	_ = v.BindPFlag("utxos_limit", flags.Lookup("utxos-limit"))
	_ = v.BindPFlag("electrum_txs_limit", flags.Lookup("electrum-txs-limit"))
	_ = v.BindPFlag("jsonrpc_import", flags.Lookup("jsonrpc-import"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_file", flags.Lookup("log-file"))

	return cmd
}
