// Copyright 2025 Poiesic Systems
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


// Package ai provides abstractions for the language model services used by
// the transcript pipeline.
//
// The package is built around three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Answerer: Answers a question from retrieved transcript passages
//   - AIProvider: Aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using the OpenAI API or any
//     OpenAI-compatible server
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and inspect call counts.
//
// # Configuration
//
// Config.Provider selects between the hosted API (ProviderOpenAI), which
// requires an API key, and a self-hosted server (ProviderCompatible), which
// does not. Validate reports ErrMissingCredentials for a hosted provider
// without a key.
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, chunks)
package ai
