// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// ProvisionTask names an in-flight provisioning attempt and its
// completion channel. Modeled as a plain record rather than attaching
// ad hoc attributes to a future object (REDESIGN FLAGS: "mutable futures
// with arbitrary attributes").
type ProvisionTask struct {
	ServerName string
	Labels     LabelSet
	Done       <-chan error
}
