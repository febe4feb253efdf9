// Package logx is relaybot's structured logging on top of zerolog.
//
// Console output is human readable with a file:line caller, file output is
// JSON lines. The optional Telegram sink posts warnings to an operator chat
// as short reports that lead with the relay job and message ids.
package logx
