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

package config

import (
	"bytes"
	"strings"

	libval "github.com/go-playground/validator/v10"
	libmap "github.com/mitchellh/mapstructure"
	libtls "github.com/nabbar/proxycore/certificates"
	"github.com/nabbar/proxycore/errors"
	libvpr "github.com/spf13/viper"
)

// decodeHook folds the certificate store's typed decoders with the generic
// duration/text hooks so one decoder serves every payload shape.
func decodeHook() libmap.DecodeHookFunc {
	return libmap.ComposeDecodeHookFunc(
		libtls.ViperDecoderHook(),
		libmap.StringToTimeDurationHookFunc(),
		libmap.TextUnmarshallerHookFunc(),
	)
}

// Decode maps a generic request payload onto a typed config struct and validates it.
// The decoder accepts weakly typed input so payloads arriving from json, yaml or cbor
// decode alike.
func Decode(payload map[string]interface{}, target interface{}) errors.Error {
	dec, err := libmap.NewDecoder(&libmap.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       decodeHook(),
	})
	if err != nil {
		return ErrorDecode.Error(err)
	}

	if err = dec.Decode(payload); err != nil {
		return ErrorDecode.Error(err)
	}

	return Validate(target)
}

// Validate runs the struct validation tags of a typed config.
func Validate(target interface{}) errors.Error {
	if err := libval.New().Struct(target); err != nil {
		e := ErrorValidatorError.Error(nil)

		if ve, ok := err.(libval.ValidationErrors); ok {
			for _, f := range ve {
				e.Add(ErrorValidatorField.Error(f))
			}
		} else {
			e.Add(err)
		}

		return e
	}

	return nil
}

// LoadWorkerFile reads a worker bootstrap config from a json/yaml/toml file via
// viper, keyed by extension.
func LoadWorkerFile(path string) (*WorkerConfig, errors.Error) {
	vpr := libvpr.New()
	vpr.SetConfigFile(path)

	if err := vpr.ReadInConfig(); err != nil {
		return nil, ErrorFileRead.Error(err)
	}

	cfg := &WorkerConfig{}
	if err := vpr.Unmarshal(cfg); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWorkerReader decodes a worker bootstrap config from an in-memory document,
// used when the config is inherited over a pipe instead of a file.
func LoadWorkerReader(doc []byte, format string) (*WorkerConfig, errors.Error) {
	vpr := libvpr.New()
	vpr.SetConfigType(strings.ToLower(format))

	if err := vpr.ReadConfig(bytes.NewReader(doc)); err != nil {
		return nil, ErrorFileRead.Error(err)
	}

	cfg := &WorkerConfig{}
	if err := vpr.Unmarshal(cfg); err != nil {
		return nil, ErrorDecode.Error(err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
