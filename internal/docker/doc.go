// Package docker runs container-backed environments and tracks the
// containers they leave behind.
//
// Interpreter-version environments (py35, py36, py37) differ only by
// image; this package supplies the pieces that make that axis work:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - the envmatrix.* label scheme that makes run containers
//     self-describing (Docker labels are the sole state storage; no
//     file on disk records a run)
//   - deterministic container-name allocation with a bounded suffix
//     fallback for collisions
//   - the docker-CLI execution path running one environment's commands
//     inside its image, one container per command
//
// Container creation goes through the docker CLI in the foreground so
// output and exit codes flow exactly as they do for host commands;
// discovery, removal, and image inspection use
// github.com/docker/docker/client with version negotiation enabled for
// broad compatibility.
package docker
