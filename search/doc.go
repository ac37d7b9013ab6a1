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


// Package search finds similar titles over stored embeddings.
//
// The Searcher supports two entry points:
//   - SimilarTo ranks records by cosine similarity to a reference record
//   - Query embeds free text and ranks records against it, boosting titles
//     that contain every non-stop word of the query
//
// Embeddings are unit length, so similarity is a dot product.
package search
