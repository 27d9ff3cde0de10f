// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for a generation run:
//
//   - DocumentLoader: Extracts text from the reference PDF folder
//   - TextSplitter: Splits document text into overlapping passages
//   - EmbeddingService: Generates vector embeddings
//   - PassageIndex: Persists passages and answers similarity queries
//   - LLMService: Chat completion for generation and diagram repair
//   - PromptStore: Named prompt templates
//   - DiagramRenderer: Converts PlantUML source to an image
//   - ArtifactStore: Request-scoped artifact persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - TokenCounter: Prompt token accounting. Without it, context is never trimmed.
//   - RunStore: Run history. Without it, runs are only visible while the process lives.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
