package repository

import "bitbattle/internal/problem/model"

// BuiltinProblems returns the problem set shipped with the server. It is
// used when the problems table is empty or no database is configured.
func BuiltinProblems() []model.Problem {
	return []model.Problem{
		{
			ID:    "two-sum",
			Title: "Two Sum",
			Description: `Given an array of integers nums and an integer target, return indices of the two numbers such that they add up to target.

You may assume that each input would have exactly one solution, and you may not use the same element twice.

You can return the answer in any order.`,
			Difficulty: model.DifficultyEasy,
			Examples: []model.TestCase{
				{
					Input:          "nums = [2,7,11,15], target = 9",
					ExpectedOutput: "[0,1]",
					Explanation:    "Because nums[0] + nums[1] == 9, we return [0, 1].",
				},
				{
					Input:          "nums = [3,2,4], target = 6",
					ExpectedOutput: "[1,2]",
				},
			},
			HiddenTests: []model.TestCase{
				{Input: "[2,7,11,15] 9", ExpectedOutput: "[0,1]"},
				{Input: "[3,2,4] 6", ExpectedOutput: "[1,2]"},
				{Input: "[3,3] 6", ExpectedOutput: "[0,1]"},
			},
			StarterCode: map[string]string{
				"javascript": `/**
 * @param {number[]} nums
 * @param {number} target
 * @return {number[]}
 */
function twoSum(nums, target) {
    // Your solution here

}

// Test your solution
console.log(twoSum([2,7,11,15], 9)); // Should return [0,1]`,
				"python": `def two_sum(nums, target):
    """
    :type nums: List[int]
    :type target: int
    :rtype: List[int]
    """
    # Your solution here
    pass

# Test your solution
print(two_sum([2,7,11,15], 9))  # Should return [0,1]`,
				"java": `class Solution {
    public int[] twoSum(int[] nums, int target) {
        // Your solution here
        return new int[]{};
    }

    public static void main(String[] args) {
        Solution solution = new Solution();
        int[] result = solution.twoSum(new int[]{2,7,11,15}, 9);
        System.out.println(java.util.Arrays.toString(result)); // Should return [0,1]
    }
}`,
			},
			Tags:             []string{"array", "hash-table"},
			TimeLimitMinutes: 15,
		},
		{
			ID:    "reverse-string",
			Title: "Reverse String",
			Description: `Write a function that reverses a string. The input string is given as an array of characters s.

You must do this by modifying the input array in-place with O(1) extra memory.`,
			Difficulty: model.DifficultyEasy,
			Examples: []model.TestCase{
				{
					Input:          `s = ["h","e","l","l","o"]`,
					ExpectedOutput: `["o","l","l","e","h"]`,
				},
				{
					Input:          `s = ["H","a","n","n","a","h"]`,
					ExpectedOutput: `["h","a","n","n","a","H"]`,
				},
			},
			HiddenTests: []model.TestCase{
				{Input: `["h","e","l","l","o"]`, ExpectedOutput: `["o","l","l","e","h"]`},
				{Input: `["H","a","n","n","a","h"]`, ExpectedOutput: `["h","a","n","n","a","H"]`},
			},
			StarterCode: map[string]string{
				"javascript": `/**
 * @param {character[]} s
 * @return {void} Do not return anything, modify s in-place instead.
 */
function reverseString(s) {
    // Your solution here

}

// Test your solution
let test = ["h","e","l","l","o"];
reverseString(test);
console.log(test); // Should be ["o","l","l","e","h"]`,
				"python": `def reverse_string(s):
    """
    :type s: List[str]
    :rtype: None Do not return anything, modify s in-place instead.
    """
    # Your solution here
    pass

# Test your solution
test = ["h","e","l","l","o"]
reverse_string(test)
print(test)  # Should be ["o","l","l","e","h"]`,
				"java": `class Solution {
    public void reverseString(char[] s) {
        // Your solution here

    }

    public static void main(String[] args) {
        Solution solution = new Solution();
        char[] test = {'h','e','l','l','o'};
        solution.reverseString(test);
        System.out.println(java.util.Arrays.toString(test)); // Should be [o,l,l,e,h]
    }
}`,
			},
			Tags:             []string{"two-pointers", "string"},
			TimeLimitMinutes: 10,
		},
		{
			ID:    "valid-parentheses",
			Title: "Valid Parentheses",
			Description: `Given a string s containing just the characters '(', ')', '{', '}', '[' and ']', determine if the input string is valid.

An input string is valid if:
1. Open brackets must be closed by the same type of brackets.
2. Open brackets must be closed in the correct order.
3. Every close bracket has a corresponding open bracket of the same type.`,
			Difficulty: model.DifficultyEasy,
			Examples: []model.TestCase{
				{Input: `s = "()`, ExpectedOutput: "true"},
				{Input: `s = "()[]{}`, ExpectedOutput: "true"},
				{Input: `s = "(]`, ExpectedOutput: "false"},
			},
			HiddenTests: []model.TestCase{
				{Input: "()", ExpectedOutput: "true"},
				{Input: "()[()]", ExpectedOutput: "true"},
				{Input: "([)]", ExpectedOutput: "false"},
			},
			StarterCode: map[string]string{
				"javascript": `/**
 * @param {string} s
 * @return {boolean}
 */
function isValid(s) {
    // Your solution here

}

// Test your solution
console.log(isValid("()")); // Should return true
console.log(isValid("([)]")); // Should return false`,
				"python": `def is_valid(s):
    """
    :type s: str
    :rtype: bool
    """
    # Your solution here
    pass

# Test your solution
print(is_valid("()"))  # Should return True
print(is_valid("([)]"))  # Should return False`,
				"java": `class Solution {
    public boolean isValid(String s) {
        // Your solution here
        return false;
    }

    public static void main(String[] args) {
        Solution solution = new Solution();
        System.out.println(solution.isValid("()")); // Should return true
        System.out.println(solution.isValid("([)]")); // Should return false
    }
}`,
			},
			Tags:             []string{"stack", "string"},
			TimeLimitMinutes: 20,
		},
	}
}
