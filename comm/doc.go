/*
Package comm implements the peer-to-peer wire contract between the
replicas of one replica group: replicated writes, membership view
changes and full-state recovery snapshots. Messages travel as single
text lines over plain TCP, each answered with one status line, so
that independent implementations of the protocol stay interoperable.
Causal safety is enforced by each receiver's own admission gate, the
sender makes no delivery-order promise across distinct peers.
*/
package comm
