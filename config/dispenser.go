// Copyright 2026 The Webserv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

// Dispenser walks a flat token stream with a cursor, similar to a lexer
// but aware of block/statement structure ('{', '}', ';').
type Dispenser struct {
	tokens []Token
	cursor int
}

// NewDispenser returns a Dispenser positioned before the first token.
func NewDispenser(tokens []Token) *Dispenser {
	return &Dispenser{tokens: tokens, cursor: -1}
}

// Next advances the cursor and reports whether a token was loaded.
func (d *Dispenser) Next() bool {
	if d.cursor < len(d.tokens)-1 {
		d.cursor++
		return true
	}
	return false
}

// Val returns the text of the current token, or "" if none is loaded.
func (d *Dispenser) Val() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].Text
}

// Line returns the line of the current token.
func (d *Dispenser) Line() int {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return 0
	}
	return d.tokens[d.cursor].Line
}

// File returns the filename the current token originated in.
func (d *Dispenser) File() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].File
}

// NextArg loads the next token if it exists and is not a block-control
// token ('{', '}', ';'). Returns true if an argument was loaded.
func (d *Dispenser) NextArg() bool {
	if d.cursor >= len(d.tokens)-1 {
		return false
	}
	next := d.tokens[d.cursor+1].Text
	if next == "{" || next == "}" || next == ";" {
		return false
	}
	d.cursor++
	return true
}

// RemainingArgs collects all consecutive argument tokens up to the next
// block-control token, without consuming it.
func (d *Dispenser) RemainingArgs() []string {
	var args []string
	for d.NextArg() {
		args = append(args, d.Val())
	}
	return args
}

// ExpectSemicolon consumes a trailing ';' terminating a directive,
// returning an error if one is not next.
func (d *Dispenser) ExpectSemicolon() error {
	if !d.Next() || d.Val() != ";" {
		return d.Errf("expected ';' to terminate directive")
	}
	return nil
}

// NextBlock advances to the next directive inside a block already
// opened with ExpectBlockOpen, returning false once a '}' is consumed
// (or the tokens run out).
func (d *Dispenser) NextBlock() bool {
	if !d.Next() {
		return false
	}
	if d.Val() == "}" {
		return false
	}
	return true
}

// ExpectBlockOpen consumes the '{' that opens a block.
func (d *Dispenser) ExpectBlockOpen() error {
	if !d.Next() || d.Val() != "{" {
		return d.Errf("expected '{' to open block")
	}
	return nil
}

// Errf builds a parse error tagged with the current file and line.
func (d *Dispenser) Errf(format string, args ...any) error {
	return newParseError(d.File(), d.Line(), format, args...)
}
