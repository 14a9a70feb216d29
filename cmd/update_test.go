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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

func TestUpdateCommand(t *testing.T) {
	if updateCmd == nil {
		t.Fatal("updateCmd is nil")
	}
	if updateCmd.Use != "update" {
		t.Errorf("expected use 'update', got %s", updateCmd.Use)
	}
	for _, name := range []string{"since", "force"} {
		if updateCmd.Flags().Lookup(name) == nil {
			t.Errorf("update has no --%s flag", name)
		}
	}
}

func TestRunUpdateInvalidSince(t *testing.T) {
	_, _, err := runUpdate(context.Background(), UpdateConfig{Cache: jsonConfig(t), Since: "yesterday"})
	if err == nil || !strings.Contains(err.Error(), "--since") {
		t.Errorf("runUpdate() error = %v, want a --since error", err)
	}
}

func TestPrintUpdateResult(t *testing.T) {
	out := new(bytes.Buffer)
	result := &reconcile.Result{
		Status:          reconcile.StatusPartial,
		PagesFetched:    3,
		EventsAdded:     412,
		EntitiesFetched: 17,
		Err:             errors.New("remote: transient failure"),
	}
	stats := reconcile.Stats{
		EventCount:   1000,
		EntityCount:  80,
		CacheHitRate: 0.5,
		Boundary:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	printUpdateResult(out, result, stats)

	for _, want := range []string{"partial", "412", "Stopped early", "1000 scrobbles", "50.0%", "2024-03-01T00:00:00Z"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
