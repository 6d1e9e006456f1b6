// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package qdrant

var (
	PointID       = pointID
	EncodePayload = encodePayload
	DecodePayload = decodePayload
)
