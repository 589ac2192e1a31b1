// Package dsl defines the YAML document schema for workflow and policy
// definitions and compiles workflow documents into registry entries.
//
// A definition repository holds two kinds of documents, discriminated by a
// "kind" key:
//
//	kind: policy
//	table:
//	  move: automatic
//	  attack: reviewable
//
//	kind: workflow
//	action_type: attack
//	version: 1
//	phases:
//	  - name: resolve
//	    rolls:
//	      - target: $defender
//	        dice: 1d20
//	        purpose: save
//	        timeout: 30s
//	        fallback: auto_roll
//	  - name: apply
//	    effects:
//	      - target: $defender
//	        field: hp
//	        op: sub
//	        read_from: defender_hp
//	        from_roll: save
//
// Payload references start with '$' ("$defender" reads the defender field
// of the action payload); the literal "@proposer" resolves to the proposing
// participant. Compiled workflows are pure data transforms: effects read
// inputs from the action payload and recorded rolls only, which keeps
// re-computation after a modify decision deterministic.
package dsl
