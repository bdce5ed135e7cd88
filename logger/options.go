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

package logger

import (
	libval "github.com/go-playground/validator/v10"
)

// OptionsStd tunes the console output.
type OptionsStd struct {
	// DisableStandard disable the console output completely.
	DisableStandard bool `json:"disableStandard,omitempty" yaml:"disableStandard,omitempty" toml:"disableStandard,omitempty" mapstructure:"disableStandard,omitempty"`

	// DisableColor disable the color rendering on console output.
	DisableColor bool `json:"disableColor,omitempty" yaml:"disableColor,omitempty" toml:"disableColor,omitempty" mapstructure:"disableColor,omitempty"`

	// OnlyStderr route every entry to stderr instead of stdout.
	OnlyStderr bool `json:"onlyStderr,omitempty" yaml:"onlyStderr,omitempty" toml:"onlyStderr,omitempty" mapstructure:"onlyStderr,omitempty"`
}

// OptionsFile tunes the file output.
type OptionsFile struct {
	// Filepath define the file path for log to file.
	Filepath string `json:"filepath,omitempty" yaml:"filepath,omitempty" toml:"filepath,omitempty" mapstructure:"filepath,omitempty"`

	// Create define if the log file must exist or can create it.
	Create bool `json:"create,omitempty" yaml:"create,omitempty" toml:"create,omitempty" mapstructure:"create,omitempty"`

	// FileMode define mode to be used for the log file if the create it.
	FileMode uint32 `json:"fileMode,omitempty" yaml:"fileMode,omitempty" toml:"fileMode,omitempty" mapstructure:"fileMode,omitempty"`
}

// Options is the logger configuration, decodable from any of the supported config
// sources.
type Options struct {
	// Format select the renderer: text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty" mapstructure:"format,omitempty" validate:"omitempty,oneof=text json Text Json"`

	// EnableTrace lets the hclog adapter report trace as enabled (IsTrace) at debug
	// level. Entries carry no caller or file fields either way.
	EnableTrace bool `json:"enableTrace,omitempty" yaml:"enableTrace,omitempty" toml:"enableTrace,omitempty" mapstructure:"enableTrace,omitempty"`

	// Stdout define the options for the console output.
	Stdout *OptionsStd `json:"stdout,omitempty" yaml:"stdout,omitempty" toml:"stdout,omitempty" mapstructure:"stdout,omitempty"`

	// LogFile define the options for the file output.
	LogFile *OptionsFile `json:"logFile,omitempty" yaml:"logFile,omitempty" toml:"logFile,omitempty" mapstructure:"logFile,omitempty"`
}

// Validate checks the options coherence and returns a collected error.
func (o *Options) Validate() error {
	val := libval.New()

	if err := val.Struct(o); err != nil {
		e := ErrorValidatorError.Error(nil)

		if ve, ok := err.(libval.ValidationErrors); ok {
			for _, f := range ve {
				e.Add(ErrorValidatorField.Error(f))
			}
		} else {
			e.Add(err)
		}

		if e.HasParent() {
			return e
		}
	}

	return nil
}
