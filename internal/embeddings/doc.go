// Package embeddings provides the text embedders used to build and query the
// policy index.
//
// Two providers are supported:
//
//   - fastembed: local ONNX models via fastembed-go (requires CGO). The default
//     model, sentence-transformers/all-MiniLM-L6-v2, produces 384-dimension vectors.
//   - openai: any OpenAI-compatible embeddings endpoint via langchaingo.
//
// Every Provider satisfies vectorstore.Embedder and langchaingo's embeddings.Embedder.
package embeddings
