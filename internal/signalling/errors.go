/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package signalling

import (
	"errors"
	"fmt"
)

var (
	errNotJoined    = errors.New("participant has not joined a room yet")
	errAlreadyJoined = errors.New("participant has already joined a room")
)

func errUnknownMessageType(t string) error {
	return fmt.Errorf("unknown message type: %q", t)
}

func errUnknownTarget(t Target) error {
	return fmt.Errorf("unknown ice candidate target: %q", t)
}
