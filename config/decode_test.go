/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nabbar/proxycore/config"
)

func TestDecodeBackendConfig(t *testing.T) {
	payload := map[string]interface{}{
		"clusterId": "c1",
		"backendId": "b1",
		"address":   "127.0.0.1:9000",
		"stickyId":  "B1",
		"backup":    "true",
	}

	cfg := &config.BackendConfig{}
	if err := config.Decode(payload, cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.ClusterID != "c1" || cfg.BackendID != "b1" || cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("decoded config mismatch: %+v", cfg)
	}
	if !cfg.Backup {
		t.Fatal("weakly typed bool must decode")
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	payload := map[string]interface{}{
		"clusterId": "c1",
		"backendId": "b1",
		"address":   "not-an-address",
	}

	cfg := &config.BackendConfig{}
	if err := config.Decode(payload, cfg); err == nil {
		t.Fatal("invalid address must be rejected")
	}
}

func TestDecodeFrontendConfig(t *testing.T) {
	payload := map[string]interface{}{
		"ruleId":   "r1",
		"address":  "0.0.0.0:8080",
		"hostname": "example.com",
		"pathKind": "prefix",
		"path":     "/api",
		"position": "tree",
		"clusterId": "c1",
	}

	cfg := &config.FrontendConfig{}
	if err := config.Decode(payload, cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.Position != "tree" || cfg.PathKind != "prefix" {
		t.Fatalf("decoded frontend mismatch: %+v", cfg)
	}
}

func TestLoadWorkerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")

	doc := []byte("commandSocket: /run/proxycore/worker.sock\nbufferSize: 16384\nmaxBuffers: 512\n")
	if err := os.WriteFile(path, doc, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.LoadWorkerFile(path)
	if err != nil {
		t.Fatalf("LoadWorkerFile: %v", err)
	}
	if cfg.BufferSize != 16384 || cfg.MaxBuffers != 512 {
		t.Fatalf("loaded worker config mismatch: %+v", cfg)
	}

	if _, err := config.LoadWorkerFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}
