// Package procdef builds statemachine processes from YAML definition files.
//
// A definition names its functions; a Registry maps those names to Go code:
//
//	processes:
//	  - name: invoice
//	    field: status
//	    transitions:
//	      - action: approve
//	        sources: [draft]
//	        target: approved
//	        in_progress: approving
//	        failed: failed
//	        side_effects: [send_email]
//	        next: archive
//	      - action: ping
//	        kind: action
//	        sources: [approved]
//	        callbacks: [log]
//	    nested:
//	      - name: invoice-lock
//	        transitions:
//	          - action: archive
//	            sources: [approved]
//	            target: archived
//
// Nested processes inherit the parent's field. Unknown keys, unknown function
// names and structural mistakes are reported together when building.
package procdef
