// Copyright 2024 The Forge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"os/exec"

	"github.com/mread/buck-sub000/berrors"
)

// RunCommand runs an external tool as a Step's Execute body would, the
// way the platform build driver shells out to its own toolchain
// binaries rather than reimplementing them. On a non-zero exit it
// returns a StepFailure berrors.Error carrying the captured combined
// output, per spec.md §7's step-failure contract; describe is used only
// in that error's message.
func RunCommand(describe, name string, args []string, ctx *ExecutionContext) (int, error) {
	return RunCommandWithEnv(describe, name, args, nil, ctx)
}

// RunCommandWithEnv is RunCommand with an explicit environment: a non-nil
// env replaces the child process's environment (genrule passes
// os.Environ() plus its $SRCS/$OUT/$DEPS variables).
func RunCommandWithEnv(describe, name string, args []string, env []string, ctx *ExecutionContext) (int, error) {
	cmd := exec.Command(name, args...)
	if ctx != nil {
		cmd.Dir = ctx.ProjectRoot
	}
	if env != nil {
		cmd.Env = env
	}
	out, err := cmd.CombinedOutput()
	if err == nil {
		return 0, nil
	}
	exitCode := 1
	if ee, ok := err.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	} else {
		return exitCode, berrors.Wrap(berrors.FileSystem, err, "running %s", name)
	}
	return exitCode, berrors.StepFailed(describe, string(out), exitCode)
}
