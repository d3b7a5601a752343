// Package controller implements the cluster control plane: custom-resource
// shapes for clusters and their computers, a registry over the Kubernetes
// API, a reconciler that drives computers toward their declared state, and a
// websocket bridge that streams commands down to the in-game side.
package controller

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// Group and Version identify the custom resources this controller owns.
	Group   = "sms.dev"
	Version = "v1"
)

var (
	// ClusterGVR locates the cluster custom resource.
	ClusterGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "clusters"}

	// ComputerGVR locates the computer custom resource.
	ComputerGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "computers"}

	// GatewayGVR locates the computer-gateway custom resource.
	GatewayGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "computergateways"}

	// HTTPRouteGVR locates the Gateway API route the hub is exposed through.
	HTTPRouteGVR = schema.GroupVersionResource{Group: "gateway.networking.k8s.io", Version: "v1", Resource: "httproutes"}
)

// Cluster is a named group of computers in one namespace. Its presence is
// what the controller reconciles; the spec carries no fields yet.
type Cluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ClusterSpec `json:"spec,omitempty"`
}

// ClusterSpec is intentionally empty.
type ClusterSpec struct{}

// Computer is one in-game computer registered under a cluster. The cluster
// owns it via an owner reference.
type Computer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ComputerSpec    `json:"spec"`
	Status *ComputerStatus `json:"status,omitempty"`
}

// ComputerKind distinguishes ordinary workers from gateway-designated
// computers.
type ComputerKind string

const (
	KindWorker  ComputerKind = "worker"
	KindGateway ComputerKind = "gateway"
)

// ComputerSpec is the desired state of a computer.
type ComputerSpec struct {
	// ID is the in-game computer id, the target of wake commands.
	ID string `json:"id"`

	Kind  ComputerKind  `json:"kind"`
	State ComputerState `json:"state"`
}

// ComputerState is the configuration a computer applies to itself.
type ComputerState struct {
	Label  string `json:"label,omitempty"`
	Script string `json:"script,omitempty"`
}

// ComputerStatus is the observed state reported by the agent.
type ComputerStatus struct {
	// State is the configuration the computer last applied.
	State ComputerState `json:"state,omitempty"`

	Online               bool   `json:"online"`
	LastHeartbeatUnixSec *int64 `json:"last_heartbeat_unix_sec,omitempty"`
}

// ComputerGateway declares an HTTP-over-rednet hub: an in-cluster proxy
// deployment that forwards HTTP requests to rednet backends via the
// cluster's gateway-designated computers.
type ComputerGateway struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec GatewaySpec `json:"spec"`
}

// GatewaySpec is the desired state of a gateway hub.
type GatewaySpec struct {
	// Routes maps URL prefixes to rednet backends.
	Routes []RednetRoute `json:"routes"`

	// Links names the gateway-designated computers relaying for this hub.
	Links []GatewayLink `json:"links,omitempty"`
}

// GatewayLink names one relaying computer by its in-game id.
type GatewayLink struct {
	HostID string `json:"host_id"`
}

// RednetRoute forwards requests under a URL prefix to one rednet backend.
type RednetRoute struct {
	Backend RednetBackend `json:"backend"`
	Prefix  string        `json:"prefix"`
}

// RednetBackend selects how a request is delivered over rednet. Exactly one
// variant is set; the externally-tagged encoding ({"computer": {...}})
// matches what the deployed hub image already parses.
type RednetBackend struct {
	Anycast  *AnycastBackend  `json:"anycast,omitempty"`
	Computer *ComputerBackend `json:"computer,omitempty"`
	Hostname *HostnameBackend `json:"hostname,omitempty"`
}

// AnycastBackend delivers to any computer speaking the protocol.
type AnycastBackend struct {
	Protocol string `json:"protocol"`
}

// ComputerBackend delivers to one computer by in-game id.
type ComputerBackend struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol,omitempty"`
}

// HostnameBackend delivers to the computer holding a rednet hostname.
type HostnameBackend struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
}

// Command is one instruction streamed to a cluster over the bridge. The
// externally-tagged encoding ({"Wake": {...}}) matches what the in-game
// listeners already parse.
type Command struct {
	Wake *WakeCommand `json:"Wake,omitempty"`
}

// WakeCommand asks the cluster to wake a computer so it re-checks its
// desired state.
type WakeCommand struct {
	ComputerID string `json:"computer_id"`
}

// WakeComputer builds a wake command for the given in-game computer id.
func WakeComputer(computerID string) Command {
	return Command{Wake: &WakeCommand{ComputerID: computerID}}
}

// OwnedBy reports whether the computer carries an owner reference to the
// given cluster.
func (c *Computer) OwnedBy(cluster *Cluster) bool {
	for _, ref := range c.OwnerReferences {
		if ref.UID == cluster.UID {
			return true
		}
	}
	return false
}
