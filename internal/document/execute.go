package document

import (
	"context"
	"log/slog"

	"github.com/stencila/stencila/internal/graph"
	"github.com/stencila/stencila/internal/kernel"
	"github.com/stencila/stencila/internal/schema"
)

// nodeInfo tracks one plan node during execution: a snapshot of the node
// taken at the start, plus the status it had before execution so that
// scheduled-but-never-run nodes can be reverted.
type nodeInfo struct {
	stageIndex int
	nodeID     string
	node       *schema.Node
	previous   *schema.ExecuteStatus
}

func newNodeInfo(stageIndex int, nodeID string, node *schema.Node) *nodeInfo {
	info := &nodeInfo{stageIndex: stageIndex, nodeID: nodeID, node: node}
	info.previous = node.GetExecuteStatus()
	return info
}

func (ni *nodeInfo) getExecuteStatus() *schema.ExecuteStatus {
	return ni.node.GetExecuteStatus()
}

func (ni *nodeInfo) clone() *nodeInfo {
	out := *ni
	out.node = ni.node.Clone()
	return &out
}

// setExecuteStatusScheduled moves the node to Scheduled, or to
// ScheduledPreviouslyFailed when the previous run failed.
func (ni *nodeInfo) setExecuteStatusScheduled() schema.Patch {
	if !ni.node.HasExecuteStatus() {
		return schema.Patch{Target: ni.nodeID}
	}
	status := schema.StatusScheduled
	if ni.node.ExecuteStatus != nil && *ni.node.ExecuteStatus == schema.StatusFailed {
		status = schema.StatusScheduledPreviouslyFailed
	}
	ni.node.ExecuteStatus = &status
	return schema.StatusPatch(ni.nodeID, &status)
}

// setExecuteStatusRunning moves the node to Running, or to
// RunningPreviouslyFailed when the previous or scheduled status says the
// last run failed.
func (ni *nodeInfo) setExecuteStatusRunning() schema.Patch {
	if !ni.node.HasExecuteStatus() {
		return schema.Patch{Target: ni.nodeID}
	}
	status := schema.StatusRunning
	if s := ni.node.ExecuteStatus; s != nil {
		switch *s {
		case schema.StatusFailed, schema.StatusScheduledPreviouslyFailed:
			status = schema.StatusRunningPreviouslyFailed
		}
	}
	ni.node.ExecuteStatus = &status
	return schema.StatusPatch(ni.nodeID, &status)
}

// setExecuteStatusCancelled marks the node Cancelled. Used for nodes that
// had started when the cancellation arrived: side effects may have
// occurred but the node tree is not patched beyond the status.
func (ni *nodeInfo) setExecuteStatusCancelled() schema.Patch {
	if !ni.node.HasExecuteStatus() {
		return schema.Patch{Target: ni.nodeID}
	}
	status := schema.StatusCancelled
	ni.node.ExecuteStatus = &status
	return schema.StatusPatch(ni.nodeID, &status)
}

// resetExecuteStatus reverts a node that never got to run back to its
// previous status, and marks a node that was running as Cancelled. Other
// statuses are left unchanged.
func (ni *nodeInfo) resetExecuteStatus() schema.Patch {
	if !ni.node.HasExecuteStatus() || ni.node.ExecuteStatus == nil {
		return schema.Patch{Target: ni.nodeID}
	}
	switch *ni.node.ExecuteStatus {
	case schema.StatusScheduled, schema.StatusScheduledPreviouslyFailed:
		ni.node.ExecuteStatus = ni.previous
		return schema.StatusPatch(ni.nodeID, ni.previous)
	case schema.StatusRunning, schema.StatusRunningPreviouslyFailed:
		status := schema.StatusCancelled
		ni.node.ExecuteStatus = &status
		return schema.StatusPatch(ni.nodeID, &status)
	}
	return schema.Patch{Target: ni.nodeID}
}

// taskCompletion is the result of one task goroutine.
type taskCompletion struct {
	taskIndex    int
	resourceInfo graph.ResourceInfo
	nodeInfo     *nodeInfo
	patch        schema.Patch
	ok           bool
}

// Execute runs a plan against the kernel space, emitting patches that
// reflect each node's transition through the execute-status lifecycle.
//
// Stages run sequentially; tasks within a stage run concurrently. Before
// each stage the dependency gate checks that no dependency of any task in
// the stage is unexecuted, failed or cancelled; if one is, the remaining
// plan is abandoned. Cancellation requests arrive on cancels and are
// honored both between stages and while a stage is in flight.
func Execute(
	ctx context.Context,
	plan *graph.Plan,
	root *Root,
	kernels *kernel.Space,
	patches chan<- PatchRequest,
	cancels <-chan CancelRequest,
) error {
	// Drain any cancellation requests inadvertently sent by a client for
	// a previous execute request.
	for {
		select {
		case <-cancels:
			continue
		default:
		}
		break
	}

	// Snapshot all nodes involved in the plan.
	nodeInfos := map[graph.Resource]*nodeInfo{}
	for stageIndex, stage := range plan.Stages {
		for _, task := range stage.Tasks {
			resource := task.ResourceInfo.Resource
			node, nodeID, err := resourceToNode(resource, root)
			if err != nil {
				slog.Warn("while executing plan", "error", err)
				continue
			}
			nodeInfos[resource] = newNodeInfo(stageIndex, nodeID, node)
		}
	}

	// Set nodes in stages other than the first to Scheduled and send the
	// resulting patches. The first stage is elided as an optimization:
	// its nodes go directly to Running.
	var scheduled []schema.Patch
	for _, info := range nodeInfos {
		if info.stageIndex != 0 {
			scheduled = append(scheduled, info.setExecuteStatusScheduled())
		}
	}
	sendPatches(patches, scheduled, WhenSoon)

	stageCount := len(plan.Stages)
	cancelled := map[string]bool{}

stages:
	for stageIndex, stage := range plan.Stages {
		// Dependency gate: stop before this stage if any dependency of
		// any of its tasks is unexecuted, failed or cancelled.
		if dependenciesFailed(stage, nodeInfos) {
			slog.Debug("stopping: dependencies failed or were cancelled",
				"stage", stageIndex+1, "stages", stageCount)
			break
		}

		cancellers := map[string]chan struct{}{}

		// Check for cancellation requests that arrived between stages.
		for {
			select {
			case request := <-cancels:
				if handleCancelRequest(request, nodeInfos, cancellers, cancelled, patches) {
					break stages
				}
				continue
			default:
			}
			break
		}

		taskCount := len(stage.Tasks)
		var statusPatches []schema.Patch
		completions := make(chan taskCompletion, taskCount)
		pending := 0

		for taskIndex, task := range stage.Tasks {
			info, ok := nodeInfos[task.ResourceInfo.Resource]
			if !ok {
				continue
			}

			// A node cancelled before it started is reverted to its
			// previous status; Cancelled is reserved for nodes that ran.
			if cancelled[info.nodeID] {
				slog.Debug("node cancelled before it was started", "node", info.nodeID)
				statusPatches = append(statusPatches, info.resetExecuteStatus())
				continue
			}

			statusPatches = append(statusPatches, info.setExecuteStatusRunning())

			canceller := make(chan struct{}, 1)
			cancellers[info.nodeID] = canceller

			resourceInfo := task.ResourceInfo
			selector := task.KernelSelector
			isFork := task.IsFork
			taskNodeInfo := info.clone()
			pending++
			go runTask(ctx, taskIndex, resourceInfo, selector, isFork, taskNodeInfo, kernels, canceller, completions)
		}

		sendPatches(patches, statusPatches, WhenSoon)

		if pending == 0 {
			slog.Debug("skipping stage, all tasks cancelled",
				"stage", stageIndex+1, "stages", stageCount)
			continue
		}

		// Wait for task completions and cancellation requests.
		for pending > 0 {
			select {
			case completion := <-completions:
				pending--
				if !completion.ok {
					continue
				}
				if cancelled[completion.nodeInfo.nodeID] {
					// Result is ignored: side effects may have occurred
					// but the node is not patched beyond its status.
					sendPatch(patches, completion.nodeInfo.setExecuteStatusCancelled(), WhenSoon)
				} else {
					sendPatch(patches, completion.patch, WhenSoon)
				}
				nodeInfos[completion.resourceInfo.Resource] = completion.nodeInfo

			case request := <-cancels:
				if handleCancelRequest(request, nodeInfos, cancellers, cancelled, patches) {
					// Remaining completions land in the buffered channel
					// and are ignored; the final sweep resets statuses.
					break stages
				}
			}
		}

		// Release interrupt-forwarding goroutines of tasks that completed
		// without being cancelled.
		closeCancellers(cancellers)
	}

	// For nodes that were scheduled but never got to run, or were running
	// but got cancelled, reset the execute status.
	var sweep []schema.Patch
	for _, info := range nodeInfos {
		sweep = append(sweep, info.resetExecuteStatus())
	}
	sendPatches(patches, sweep, WhenSoon)

	return nil
}

// runTask executes a single node in the kernel space and reports the
// resulting diff. An error while beginning execution is logged and the
// node's status left unchanged.
func runTask(
	ctx context.Context,
	taskIndex int,
	resourceInfo graph.ResourceInfo,
	selector string,
	isFork bool,
	info *nodeInfo,
	kernels *kernel.Space,
	canceller <-chan struct{},
	completions chan<- taskCompletion,
) {
	executed := info.node.Clone()

	taskInfo, err := kernels.ExecBegin(ctx, executed.Code, selector, isFork)
	if err != nil {
		logTaskError(info.nodeID, err)
		taskInfo = nil
	}

	if taskInfo != nil {
		// Forward a cancellation signal to the kernel's interrupter, if
		// the task is interruptable.
		if interrupter := taskInfo.Task.Interrupter; interrupter != nil {
			go func() {
				// A sent value is a cancellation; a close is teardown at
				// the end of the stage.
				if _, ok := <-canceller; ok {
					select {
					case interrupter <- struct{}{}:
					default:
					}
				}
			}()
		}

		result, err := taskInfo.Result(ctx)
		if err != nil {
			logTaskError(info.nodeID, err)
			completions <- taskCompletion{taskIndex: taskIndex, ok: false}
			return
		}
		executeEnd(executed, result)
	}

	failed := executed.ExecuteStatus != nil && *executed.ExecuteStatus == schema.StatusFailed
	resourceInfo.DidExecute(failed)

	patch := schema.Diff(info.node, executed)
	patch.Target = info.nodeID
	info.node = executed

	completions <- taskCompletion{
		taskIndex:    taskIndex,
		resourceInfo: resourceInfo,
		nodeInfo:     info,
		patch:        patch,
		ok:           true,
	}
}

// executeEnd folds a kernel task result into the executed node.
func executeEnd(node *schema.Node, result kernel.TaskResult) {
	node.Outputs = result.Outputs
	node.Errors = result.Messages
	node.ExecuteCount++
	status := schema.StatusSucceeded
	if !result.Ok {
		status = schema.StatusFailed
	}
	if node.HasExecuteStatus() {
		node.ExecuteStatus = &status
	}
}

// dependenciesFailed reports whether any dependency of any task in the
// stage is unexecuted, failed or cancelled.
func dependenciesFailed(stage graph.Stage, nodeInfos map[graph.Resource]*nodeInfo) bool {
	seen := map[graph.Resource]bool{}
	for _, task := range stage.Tasks {
		for _, dependency := range task.ResourceInfo.Dependencies {
			if seen[dependency] {
				continue
			}
			seen[dependency] = true
			info, ok := nodeInfos[dependency]
			if !ok {
				continue
			}
			status := info.getExecuteStatus()
			if status == nil || *status == schema.StatusFailed || *status == schema.StatusCancelled {
				return true
			}
		}
	}
	return false
}

// handleCancelRequest fires the canceller for the targeted node(s), emits
// Cancelled patches for nodes that were running, and records them so they
// are skipped if still scheduled. Returns true when the whole plan should
// stop.
func handleCancelRequest(
	request CancelRequest,
	nodeInfos map[graph.Resource]*nodeInfo,
	cancellers map[string]chan struct{},
	cancelled map[string]bool,
	patches chan<- PatchRequest,
) bool {
	scope := request.Scope
	if scope == "" {
		scope = graph.ScopeSingle
	}
	slog.Debug("handling cancel request", "node", request.Start, "scope", scope)

	switch scope {
	case graph.ScopeSingle:
		nodeID := request.Start
		if nodeID == "" {
			slog.Error("cancellation scope is Single but no node id supplied: ignored")
			return false
		}
		if canceller, ok := cancellers[nodeID]; ok {
			slog.Debug("cancelling running node", "node", nodeID)
			delete(cancellers, nodeID)
			fireCanceller(canceller)
			if info := findNodeInfo(nodeInfos, nodeID); info != nil {
				sendPatch(patches, info.setExecuteStatusCancelled(), WhenSoon)
			}
		}
		cancelled[nodeID] = true
		return false

	case graph.ScopeAll:
		slog.Debug("cancelling all running nodes")
		var cancelPatches []schema.Patch
		for _, info := range nodeInfos {
			if canceller, ok := cancellers[info.nodeID]; ok {
				delete(cancellers, info.nodeID)
				fireCanceller(canceller)
				cancelPatches = append(cancelPatches, info.setExecuteStatusCancelled())
			}
			cancelled[info.nodeID] = true
		}
		sendPatches(patches, cancelPatches, WhenSoon)
		return true
	}
	return false
}

// fireCanceller signals cancellation then closes the channel so the
// interrupt-forwarding goroutine always terminates.
func fireCanceller(canceller chan struct{}) {
	select {
	case canceller <- struct{}{}:
	default:
	}
	close(canceller)
}

func closeCancellers(cancellers map[string]chan struct{}) {
	for nodeID, canceller := range cancellers {
		delete(cancellers, nodeID)
		close(canceller)
	}
}

func findNodeInfo(nodeInfos map[graph.Resource]*nodeInfo, nodeID string) *nodeInfo {
	for _, info := range nodeInfos {
		if info.nodeID == nodeID {
			return info
		}
	}
	return nil
}
