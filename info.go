/************************************************************************************
 *
 * gatewaysdk — a Go client for realtime chat-gateway services
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2026 The gatewaysdk Authors
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gatewaysdk

const (
	// LibName identifies this library in the gateway IDENTIFY properties and
	// the REST User-Agent header.
	LibName = "gatewaysdk"

	// LibVersion is the current release version.
	LibVersion = "0.1.0"
)
