package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// --- Global Command Variables ---
var (
	cfgFile  string
	logLevel string

	seeds            []string
	credsFile        string
	templatesDir     string
	maxHops          int
	transportKind    string
	transportPort    int
	connectTimeoutMS int
	commandTimeoutMS int
	crawlCommands    []string
	outputFormat     string
	snmpCommunity    string
	noICMP           bool

	sealKey string

	rootCmd = &cobra.Command{
		Use:   "topocrawl",
		Short: "Discover network topology by walking CDP/LLDP neighbor tables",
		Long: `topocrawl connects to seed devices over SSH or WinRM, reads their
neighbor tables and follows every advertised neighbor breadth-first
up to a hop limit, producing the device and link graph it saw.`,
	}

	// --- Crawl ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Crawl the network once and print the discovered topology",
		Run:   runCrawl, // Defined in cmd_run.go
	}

	// --- Templates ---
	templatesCmd = &cobra.Command{
		Use:   "templates",
		Short: "Inspect the neighbor-table parse templates",
	}
	templatesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the commands the parser understands",
		Run:   runTemplatesList, // Defined in cmd_templates.go
	}
	templatesValidateCmd = &cobra.Command{
		Use:   "validate [directory]",
		Short: "Compile a template directory and report problems",
		Args:  cobra.MaximumNArgs(1),
		Run:   runTemplatesValidate, // Defined in cmd_templates.go
	}

	// --- Credentials ---
	credentialsCmd = &cobra.Command{
		Use:   "credentials",
		Short: "Manage device credential files",
	}
	sealCmd = &cobra.Command{
		Use:   "seal [secret]",
		Short: "Encrypt a secret for use in a credentials file",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSeal, // Defined in cmd_credentials.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the topocrawl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("topocrawl", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log verbosity: debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVarP(&seeds, "seeds", "s", nil, "Seed devices to start from (IP, hostname or CIDR)")
	runCmd.Flags().StringVar(&credsFile, "credentials", "", "Credentials file to try against devices")
	runCmd.Flags().StringVar(&templatesDir, "templates", "", "Template directory overriding the builtin set")
	runCmd.Flags().IntVar(&maxHops, "max-hops", 0, "Traversal depth limit; 0 visits only the seeds")
	runCmd.Flags().StringVar(&transportKind, "transport", "", "Device transport: ssh or winrm")
	runCmd.Flags().IntVar(&transportPort, "port", 0, "Transport port")
	runCmd.Flags().IntVar(&connectTimeoutMS, "connect-timeout-ms", 0, "Per-device connect timeout in milliseconds")
	runCmd.Flags().IntVar(&commandTimeoutMS, "command-timeout-ms", 0, "Per-command timeout in milliseconds")
	runCmd.Flags().StringSliceVar(&crawlCommands, "commands", nil, "Neighbor-table commands to run on every device")
	runCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
	runCmd.Flags().StringVar(&snmpCommunity, "snmp-community", "", "Identify unqueryable devices over SNMP with this community")
	runCmd.Flags().BoolVar(&noICMP, "no-icmp", false, "Skip the ICMP probe and rely on the TCP port check alone")
	runCmd.MarkFlagRequired("seeds")

	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
	templatesListCmd.Flags().StringVar(&templatesDir, "dir", "", "Template directory overriding the builtin set")

	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(sealCmd)
	sealCmd.Flags().StringVar(&sealKey, "key", "", "32-byte encryption key (defaults to TOPO_AUTH_ENCRYPTION_KEY)")

	rootCmd.AddCommand(versionCmd)
}
