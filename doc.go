/*
Package ccs lets a client outside a running multi-PE job send a named
request into the job and receive a reply.

A request enters the job on the forwarding PE (PE 0), whose Router checks
the target selector and forwards it:

	selector >= 0   to PE selector mod N
	selector == -1  to every PE (broadcast, relayed from PE 0)
	selector <= -2  to the -selector PEs listed ahead of the payload

On each target PE an execution context looks up the handler named in the
request, runs it, and makes sure exactly one reply goes back: the handler's
own, an empty one when the handler did not answer, or the eventual reply of
a DelayedReply. Replies travel to the forwarding PE, which writes them to the
client connection. Replies to a broadcast or multicast are first merged into
one by the MergeFunc attached to the handler.

Handlers are registered per PE in Config.Setup:

	t.RegisterFunc("echo", func(api ccs.API, _ interface{}, data []byte) {
		api.Reply(data)
	}, nil)
	t.AttachMerge("echo", ccs.MergeConcat)
*/
package ccs
