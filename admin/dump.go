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

package admin

import (
	"encoding/json"
	"strings"

	libmap "github.com/mitchellh/mapstructure"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// RenderSnapshot serializes a snapshot in the requested format: toml (default),
// yaml or json.
func RenderSnapshot(s Snapshot, format string) ([]byte, errors.Error) {
	var (
		out []byte
		err error
	)

	switch strings.ToLower(format) {
	case "", "toml":
		out, err = toml.Marshal(s)
	case "yaml", "yml":
		out, err = yaml.Marshal(s)
	case "json":
		out, err = json.MarshalIndent(s, "", "  ")
	default:
		return nil, ErrorBadPayload.Error(nil)
	}

	if err != nil {
		return nil, ErrorStateSave.Error(err)
	}

	return out, nil
}

// ParseSnapshot decodes a snapshot document in any of the supported formats.
func ParseSnapshot(doc []byte, format string) (Snapshot, errors.Error) {
	s := Snapshot{}

	var err error

	switch strings.ToLower(format) {
	case "", "toml":
		err = toml.Unmarshal(doc, &s)
	case "yaml", "yml":
		err = yaml.Unmarshal(doc, &s)
	case "json":
		err = json.Unmarshal(doc, &s)
	default:
		return s, ErrorBadPayload.Error(nil)
	}

	if err != nil {
		return s, ErrorStateLoad.Error(err)
	}

	return s, nil
}

func (p *Plane) applyDumpState(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		Format string `mapstructure:"format"`
	}{}
	if len(req.Payload) > 0 {
		if err := config.Decode(req.Payload, &cfg); err != nil {
			return []WorkerResponse{Err(req.ID, err)}
		}
	}

	doc, err := RenderSnapshot(p.Snapshot(), cfg.Format)
	if err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	return []WorkerResponse{OkData(req.ID, "state dump", string(doc))}
}

// structToPayload renders a typed config back into the generic payload shape used
// by Apply, honoring the same field tags as the decode path.
func structToPayload(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}

	dec, err := libmap.NewDecoder(&libmap.DecoderConfig{
		Result:  &out,
		TagName: "mapstructure",
	})
	if err != nil {
		return out
	}

	_ = dec.Decode(v)

	return out
}
