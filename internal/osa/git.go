package osa

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sgx-labs/gitmemory/internal/memerr"
)

// runGit shells the real git binary rooted at root (-C root plus the
// subcommand args), accepting a context deadline and optional stdin.
func runGit(ctx context.Context, root string, stdin []byte, args ...string) (string, error) {
	cmdArgs := append([]string{"-C", root}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=gitmemory", "GIT_AUTHOR_EMAIL=gitmemory@localhost",
		"GIT_COMMITTER_NAME=gitmemory", "GIT_COMMITTER_EMAIL=gitmemory@localhost",
	)
	if err := cmd.Run(); err != nil {
		return "", memerr.Wrap(memerr.KindStoreUnavailable, "osa.git",
			fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ensureRepo lazily initializes a bare repository at root if one does not
// already exist, the same lazy first-use pattern used for the user-domain
// store directory.
func ensureRepo(ctx context.Context, root string, bare bool) error {
	cmd := exec.CommandContext(ctx, "git", "-C", root, "rev-parse", "--git-dir")
	if err := cmd.Run(); err == nil {
		return nil
	}
	args := []string{"-C", root, "init"}
	if bare {
		args = append(args, "--bare")
	}
	cmd = exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return memerr.Wrap(memerr.KindStoreUnavailable, "osa.ensureRepo",
			fmt.Errorf("git init: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}

// hashObjectBlob writes body as a loose blob object and returns its hash —
// the content-addressing primitive every append builds on.
func hashObjectBlob(ctx context.Context, root string, body []byte) (string, error) {
	return runGit(ctx, root, body, "hash-object", "-w", "--stdin")
}

// mkTreeSingle builds a tree with one entry, name -> blobHash, and returns
// the tree's hash.
func mkTreeSingle(ctx context.Context, root, name, blobHash string) (string, error) {
	entry := fmt.Sprintf("100644 blob %s\t%s\n", blobHash, name)
	return runGit(ctx, root, []byte(entry), "mktree")
}

// commitTree creates a commit object for treeHash with the given parent
// (empty for the first commit in a namespace chain) and message, returning
// the new commit hash. This is the append-only "anchor object" each note is
// attached to.
func commitTree(ctx context.Context, root, treeHash, parent, message string) (string, error) {
	args := []string{"commit-tree", treeHash}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	args = append(args, "-m", message)
	return runGit(ctx, root, nil, args...)
}

// updateRefCAS atomically advances ref to newVal, requiring its current
// value to equal oldVal (empty string means "ref must not exist yet").
// A mismatch means another writer raced past our advisory lock and is
// surfaced as KindRefLocked.
func updateRefCAS(ctx context.Context, root, ref, newVal, oldVal string) error {
	args := []string{"update-ref", ref, newVal}
	if oldVal != "" {
		args = append(args, oldVal)
	} else {
		args = append(args, "0000000000000000000000000000000000000000")
	}
	if _, err := runGit(ctx, root, nil, args...); err != nil {
		return memerr.Wrap(memerr.KindRefLocked, "osa.updateRefCAS", err)
	}
	return nil
}

// resolveRef returns the commit hash ref currently points to, or "" if the
// ref does not exist.
func resolveRef(ctx context.Context, root, ref string) (string, error) {
	out, err := runGit(ctx, root, nil, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", nil
	}
	return out, nil
}

// readBlobAt reads the "note" blob inside commitRef's tree.
func readBlobAt(ctx context.Context, root, commitRef string) (string, error) {
	out, err := runGit(ctx, root, nil, "show", commitRef+":note")
	if err != nil {
		return "", memerr.Wrap(memerr.KindNotFound, "osa.read", err)
	}
	return out, nil
}

// logChain returns the commit hashes reachable from ref, oldest first.
func logChain(ctx context.Context, root, ref string) ([]string, error) {
	out, err := runGit(ctx, root, nil, "log", "--format=%H", "--reverse", ref)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
