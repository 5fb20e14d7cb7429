/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// ErrInterrupted is returned by REPL.Readline when the user presses
// Ctrl-C on an otherwise-empty line, distinguishing "abort this line"
// from io.EOF's "end the session."
var ErrInterrupted = errors.New("cli: interrupted")

// REPLConfig configures a line-editing interactive session.
type REPLConfig struct {
	Prompt      string
	HistoryFile string
	// Words, when non-empty, drives simple prefix tab-completion over
	// a fixed vocabulary (command names, resource names, etc.).
	Words []string
}

// REPL wraps a readline.Instance, giving operator tools history,
// line editing, and tab completion without hand-rolling terminal
// raw-mode handling.
type REPL struct {
	instance *readline.Instance
}

// NewREPL builds a REPL from cfg.
func NewREPL(cfg REPLConfig) (*REPL, error) {
	var completer readline.AutoCompleter
	if len(cfg.Words) > 0 {
		items := make([]readline.PrefixCompleterInterface, len(cfg.Words))
		for i, w := range cfg.Words {
			items[i] = readline.PcItem(w)
		}
		completer = readline.NewPrefixCompleter(items...)
	}

	instance, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("cli: build readline instance: %w", err)
	}
	return &REPL{instance: instance}, nil
}

// SetPrompt changes the prompt shown before the next Readline call.
func (r *REPL) SetPrompt(prompt string) {
	r.instance.SetPrompt(prompt)
}

// Readline reads one line of input. It returns ErrInterrupted on Ctrl-C
// and io.EOF on Ctrl-D, so a caller's REPL loop can tell "abort this
// line and reprompt" apart from "end the session."
func (r *REPL) Readline() (string, error) {
	line, err := r.instance.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt):
		return "", ErrInterrupted
	case errors.Is(err, io.EOF):
		return "", io.EOF
	case err != nil:
		return "", fmt.Errorf("cli: readline: %w", err)
	default:
		return line, nil
	}
}

// SaveHistory appends line to the session's history file, for input
// read some other way (e.g. a line handed off from a prior prompt).
func (r *REPL) SaveHistory(line string) error {
	return r.instance.SaveHistory(line)
}

// Close releases the underlying terminal state.
func (r *REPL) Close() error {
	return r.instance.Close()
}
