// Package llm provides the text-generation clients used by the governance pipeline.
//
// A Client wraps one provider backend with rate limiting, exponential-backoff retry
// and tracing. Three providers are supported:
//
//   - azure: Azure OpenAI chat deployments via langchaingo
//   - openai: the public OpenAI API via langchaingo
//   - anthropic: Claude via the Anthropic Go SDK
//
// Every failure returned by Complete is a *GenerationError wrapping ErrGeneration,
// so callers can classify it with errors.Is without knowing the provider.
package llm
