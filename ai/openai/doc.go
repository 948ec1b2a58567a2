// Package openai implements the ai interfaces with the official OpenAI Go
// SDK. The SDK's own retry loop is disabled; callers own retry policy.
package openai
