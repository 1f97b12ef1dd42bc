// SPDX-License-Identifier: MIT

package user

// defaultChatMessages is the built-in chat catalog used when the user has no
// customized messages.
var defaultChatMessages = [16]string{
	"ggs",
	"one more",
	"brb",
	"good luck",
	"well played",
	"that was fun",
	"thanks",
	"too good",
	"sorry",
	"my b",
	"lol",
	"wow",
	"gotta go",
	"one sec",
	"let's play again later",
	"bad connection",
}

// DefaultChatMessages returns a copy of the built-in chat catalog.
func DefaultChatMessages() []string {
	return append([]string(nil), defaultChatMessages[:]...)
}
