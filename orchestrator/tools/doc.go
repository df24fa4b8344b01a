// Copyright 2025 AxonFlow
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

// Package tools executes the tool calls a model makes while building a
// report. Each tool name decodes into its own typed Call; an Executor owns
// one request's report draft and runs a turn's calls, read-only data calls
// concurrently and draft, learning and terminal calls in order.
//
// Tool failures never escape Execute. They come back as error results for
// the model to read and adjust to.
package tools
