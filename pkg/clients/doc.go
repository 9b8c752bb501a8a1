/*
Package clients holds the remote clients consumed by convergence steps and
action handlers: the Platform (provision, deprovision, discover) and the
per-node Agent (info, status).

Both are defined as interfaces so steps and handlers can be tested against
doubles; the HTTP implementations speak the services' JSON APIs. The
orchestration engine treats every call as opaque and awaits it to
completion, so implementations must be safe to retry.
*/
package clients
