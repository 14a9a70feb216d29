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
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ademuri/scrobble-moods/internal/cache"
	"github.com/ademuri/scrobble-moods/internal/reconcile"
	"github.com/ademuri/scrobble-moods/internal/remote/lastfmapi"
	"github.com/ademuri/scrobble-moods/internal/store"
)

const (
	backendJSON   = "json"
	backendSQLite = "sqlite"
)

type CacheConfig struct {
	Backend  string
	CacheDir string
	DbPath   string
	User     string
}

func cacheConfigFromViper() CacheConfig {
	return CacheConfig{
		Backend:  viper.GetString("backend"),
		CacheDir: viper.GetString("cache_dir"),
		DbPath:   viper.GetString("database"),
		User:     strings.ToLower(viper.GetString("user")),
	}
}

// session is an opened cache backend and the caches loaded from it.
type session struct {
	user      string
	persister cache.Persister
	caches    *cache.Caches
	close     func() error
}

func openSession(config CacheConfig) (*session, error) {
	if config.User == "" {
		return nil, fmt.Errorf("required setting(s) not set: [user]")
	}

	s := &session{user: config.User, close: func() error { return nil }}
	switch config.Backend {
	case backendJSON, "":
		s.persister = cache.NewFileStore(config.CacheDir)
	case backendSQLite:
		db, err := store.Open(config.DbPath, func(err error) {
			logger.Warn().Err(err).Msg("Database is corrupt, starting from empty")
		})
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.persister = db
		s.close = db.Close
	default:
		return nil, fmt.Errorf("unknown backend %q, want %q or %q", config.Backend, backendJSON, backendSQLite)
	}

	caches, err := cache.Load(s.persister, s.user, func(err error) {
		logger.Warn().Err(err).Msg("Cache is corrupt, starting from empty")
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("loading cache: %w", err)
	}
	s.caches = caches
	return s, nil
}

func reconcileConfigFromViper() reconcile.Config {
	config := reconcile.DefaultConfig()
	config.MaxAttempts = viper.GetUint("max_retries")
	config.RetryDelay = viper.GetDuration("retry_delay")
	config.MaxRetryDelay = viper.GetDuration("max_retry_delay")
	config.RequestsPerSec = viper.GetFloat64("requests_per_second")
	config.CheckpointPages = viper.GetInt("checkpoint_pages")
	config.RefreshInterval = viper.GetDuration("refresh_interval")
	return config
}

// newReconciler wires the last.fm client to the session's caches.
func (s *session) newReconciler() (*reconcile.Reconciler, error) {
	if err := requireConfig("api_key", "secret"); err != nil {
		return nil, err
	}

	client := lastfmapi.New(viper.GetString("api_key"), viper.GetString("secret"), lastfmapi.Options{
		SessionKey:  viper.GetString("session_key"),
		PageTimeout: viper.GetDuration("page_timeout"),
		TagTimeout:  viper.GetDuration("tag_timeout"),
	})
	return reconcile.New(client, client, s.persister, s.caches, reconcileConfigFromViper(), logger), nil
}
