package embeddings

// modelDimension returns the output size of known models.
func modelDimension(model string) (int, bool) {
	dims := map[string]int{
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"all-MiniLM-L6-v2":                       384,
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
		"text-embedding-3-small":                 1536,
		"text-embedding-3-large":                 3072,
		"text-embedding-ada-002":                 1536,
	}
	dim, ok := dims[model]
	return dim, ok
}
