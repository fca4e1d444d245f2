package cmd

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tmattsson/photocurator/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing photocurator configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  photocurator config dump > config.yaml

Configuration can be set via:
  - Config file (./config.yaml, ./configs/config.yaml, /etc/photocurator, $HOME/.photocurator)
  - Environment variables (PHOTOCURATOR_SERVER_PORT, PHOTOCURATOR_STORAGE_PHOTOS_DIR, etc.)
  - Command-line flags (for some options)

Environment variables use the PHOTOCURATOR_ prefix and underscores for nesting.
Example: server.port -> PHOTOCURATOR_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// stringerType is used to detect fields (config.Duration, config.ByteSize,
// time.Duration) that should be dumped via their human-readable String()
// rather than their raw underlying representation.
var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

// toMap converts a config struct to a map keyed by its mapstructure tags,
// rendering duration and byte-size fields in human-readable form.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch {
		case field.Type().Implements(stringerType):
			result[key] = field.Interface().(fmt.Stringer).String()
		case field.Kind() == reflect.Struct:
			result[key] = toMap(field.Interface())
		default:
			result[key] = field.Interface()
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Only the built-in defaults are dumped: no config file or environment
	// variable is read.
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("loading default config: %w", err)
	}

	cfgMap := toMap(&cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# photocurator configuration file")
	fmt.Println("# ================================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the PHOTOCURATOR_ prefix:")
	fmt.Println("#   PHOTOCURATOR_SERVER_PORT, PHOTOCURATOR_STORAGE_PHOTOS_DIR")
	fmt.Println("#   PHOTOCURATOR_DATABASE_DSN, PHOTOCURATOR_SCHEDULER_RESCAN_CRON_SCHEDULE")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
