// Package memoracle provides a local documentation oracle. It crawls
// documentation sites, splits pages into semantically coherent chunks,
// embeds the chunks into a vector space, and answers natural-language
// queries with snippets fused from dense and lexical retrieval.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency or concern (e.g., sqlite/, crawl/, fs/).
package memoracle
