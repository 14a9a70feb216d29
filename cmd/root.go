/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string
var logger = zerolog.Nop()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrobble-moods",
	Short: "Tracks the moods of your last.fm listening history",
	Long: `Keeps a local cache of a last.fm user's scrobbles and the genre tags of
every artist in it, and classifies each month of listening into a mood.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = setupLogger(viper.GetString("log_level"))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scrobble-moods.yaml)")

	flags.String("api_key", "", "last.fm API key")
	flags.String("secret", "", "last.fm secret")
	flags.StringP("user", "u", "", "last.fm username to act on")
	flags.String("session_key", "", "last.fm session key, for private profiles")

	flags.String("cache_dir", defaultCacheDir(), "Directory for the JSON cache files")
	flags.String("backend", backendJSON, "Cache backend: json or sqlite")
	flags.StringP("database", "d", "./scrobbles.db", "Path to the SQLite database, when --backend=sqlite")
	flags.String("log_level", "info", "Log level: debug, info, warn or error")

	flags.Uint("max_retries", 5, "Attempts per remote call before giving up")
	flags.Duration("retry_delay", 2*time.Second, "Initial delay between retries, doubled each time")
	flags.Duration("max_retry_delay", 30*time.Second, "Longest delay between retries")
	flags.Float64("requests_per_second", 4, "Most last.fm requests made per second")
	flags.Duration("page_timeout", 30*time.Second, "Timeout for one page of history")
	flags.Duration("tag_timeout", 10*time.Second, "Timeout for one artist tag lookup")
	flags.Int("checkpoint_pages", 50, "Save the cache every this many pages")
	flags.Duration("refresh_interval", time.Hour, "Skip fetching when a complete cache is younger than this")

	flags.String("sendgrid_api_key", "", "SendGrid API key, for emailing reports")
	flags.String("from", "", "From email address")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		viper.BindPFlag(f.Name, f)
	})
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Reading .env:", err)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".scrobble-moods" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".scrobble-moods")
	}

	// SCROBBLE_MOODS_API_KEY and friends.
	viper.SetEnvPrefix("scrobble_moods")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogger writes human-readable logs to stderr, leaving stdout for
// reports.
func setupLogger(logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func defaultCacheDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".scrobble-moods"
	}
	return filepath.Join(home, ".scrobble-moods")
}

// requireConfig fails when any of the named settings is empty.
func requireConfig(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if viper.GetString(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required setting(s) not set: %v", missing)
	}
	return nil
}
