package cli

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"os/exec"
	"strings"

	"github.com/cxlmemsim/cxlbench/model"
)

// getGitInfo returns the commit and branch of the working directory, or nil
// outside a git repository.
func (a *App) getGitInfo() *model.Git {
	// Get current commit hash
	output, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Failed to get git commit")
		return nil
	}
	commit := strings.TrimSpace(string(output))

	// Get current branch
	output, err = exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Failed to get git branch")
		return &model.Git{Commit: commit}
	}

	return &model.Git{
		Commit: commit,
		Branch: strings.TrimSpace(string(output)),
	}
}
