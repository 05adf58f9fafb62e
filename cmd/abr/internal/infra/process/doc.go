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
Package process provides abstractions for external process execution and
host-level single-flight locking.

# Overview

This package contains two main components:

  - Manager: Abstracts external process execution for testability
  - Lock: flock(2)-based lock that keeps two abr runs from colliding

# Manager

Every docker, docker compose and tar invocation goes through Manager so
workflows can be exercised in unit tests without a container runtime.

	pm := process.NewDefaultManager()
	stdout, stderr, code, err := pm.RunInDir(ctx, installDir, nil, "docker", "compose", "pause")

For testing, use MockManager:

	mock := &process.MockManager{
	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	        return "", "", 0, nil
	    },
	}

# Lock

The restore helper container has a fixed name, so two restores on the same
host would collide. Lock serializes them explicitly:

	lock := process.NewLock(process.LockConfig{LockName: "temp_restore_container"})
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Limitations

  - Lock uses advisory locks; processes that do not check it can ignore it
  - Lock requires OS support for flock(2)
*/
package process
