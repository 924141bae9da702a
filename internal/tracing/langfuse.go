// Package tracing wires optional Langfuse tracing into the eino callback
// chain so agent runs, tool calls and explanation prompts are observable.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit. When Langfuse is not configured ok is false and the
// other return values are nil.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "alula-collections",
	})
	return handler, flush, true
}
