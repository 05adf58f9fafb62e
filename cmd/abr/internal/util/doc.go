// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package util holds the error taxonomy and timeout helpers shared by the abr
engine and its infrastructure adapters.

# Error Classes

Every failure that leaves a workflow step is classified so the CLI can pick
an exit code without inspecting message text:

  - ClassPrecondition: runtime unavailable, installation or archive missing
  - ClassBenign: expected runtime failures such as "already paused"
  - ClassStep: stop/extract/helper-start/copy failures
  - ClassUserDeclined: the operator refused a required cleanup

Use ClassOf to recover the class from any wrapped error.
*/
package util
