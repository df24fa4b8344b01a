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

/*
Package llm defines the messages-with-tools contract the report engine uses
to talk to a language model.

A turn sends a system prompt, the running transcript and the tool schema,
and gets back text and/or tool_use blocks plus token usage:

	resp, err := client.CreateMessage(ctx, llm.MessagesRequest{
		System:   systemPrompt,
		Messages: transcript,
		Tools:    tools.Definitions(),
	})

Two transports implement Client: package anthropic (the public HTTP API)
and package bedrock (Claude on AWS Bedrock). Both use the wire encoding in
this package, so the engine sees identical responses from either.
*/
package llm
