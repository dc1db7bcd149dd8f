// Copyright 2024 The Cockroach Authors
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

// Command libst builds the st.h compatible table library:
//
//	go build -buildmode=c-shared -o libst.so ./cmd/libst
//	go build -buildmode=c-archive -o libst.a ./cmd/libst
//
// C programs include capi/st.h and link against the result.
package main

import _ "github.com/cockroachdb/st/capi"

func main() {}
