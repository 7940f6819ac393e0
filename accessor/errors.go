/*
 * Copyright 2026 crudkit.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package accessor

import "errors"

// Accessor errors fall into three groups. Configuration errors mean the
// caller wired the accessor up wrong and must fix its setup. Validation
// errors mean the input of a single call was malformed. ErrNotFound is only
// returned by Update, where a missing target breaks the operation's contract;
// ReadByID and Delete report absence as a nil entity with a nil error.
// Storage failures are wrapped with %w and carry the driver error verbatim.
var (
	// ErrInvalidEntityType is returned by Bind when the entity type argument
	// is not a mappable struct.
	ErrInvalidEntityType = errors.New("accessor: entity type is not a mappable struct")

	// ErrInvalidPayloadType is returned by Bind when a payload type argument
	// is not a struct or one of its fields cannot be applied to the entity.
	ErrInvalidPayloadType = errors.New("accessor: payload type is not usable")

	// ErrUnknownIdentifier is returned by NewAccessor when the identifier
	// column does not exist on the bound entity.
	ErrUnknownIdentifier = errors.New("accessor: identifier column not found on entity")

	// ErrNothingToUpdate is returned by Update when the payload carries no
	// explicitly set field that maps to an entity column.
	ErrNothingToUpdate = errors.New("accessor: update payload has no set fields")

	// ErrNotFound is returned by Update when the target row does not exist.
	ErrNotFound = errors.New("accessor: entity not found")
)
