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
Package logger provides structured JSON logging for the report service.

Every entry carries the component name, the instance and container it was
written from, the customer (client) ID and the request ID, so a single
report generation can be followed across the gatekeeper, the conversation
engine and the tool executor:

	log := logger.New("report-engine")
	log.Info(customerID, requestID, "turn completed", map[string]interface{}{
		"turn":   3,
		"tokens": 1840,
	})

Entries are written with zerolog. The level is process wide and is set
with SetLevel, normally from the LOG_LEVEL environment variable.
*/
package logger
