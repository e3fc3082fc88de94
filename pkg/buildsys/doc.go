// Package buildsys implements a small task runner. Tasks are declared in a Starlark script (tasks.star)
// and their commands are executed by the mvdan.cc/sh interpreter, which keeps the task definitions
// portable between POSIX systems and Windows.
//
// A script declares its tasks inside a configure() function:
//
//	def configure():
//	    task(
//	        short = "lint",
//	        desc = "Runs the linter",
//	        cmds = [("pylint", "-rn", "qiskit", "test")],
//	    )
//
// Tuples and lists passed in cmds are quoted so that each element reaches the executed program as
// exactly one argument. Plain strings are parsed as shell scripts.
package buildsys
